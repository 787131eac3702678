package notify

import (
	"encoding/json"
	"testing"

	"github.com/ecomter/estarter/pkg/apiproto"
)

func TestHandleNotifyRejectsMissingPayload(t *testing.T) {
	n := &Notifier{}
	resp := n.handleNotify("app.a", apiproto.Request{RequestID: 1})
	if resp.Status != apiproto.InvalidRequest {
		t.Fatalf("expected InvalidRequest, got %s", resp.Status)
	}
}

func TestHandleNotifyRejectsMissingTitle(t *testing.T) {
	n := &Notifier{}
	data, _ := json.Marshal(notifyArgs{Body: "hi"})
	resp := n.handleNotify("app.a", apiproto.Request{RequestID: 1, Data: data})
	if resp.Status != apiproto.InvalidRequest {
		t.Fatalf("expected InvalidRequest for missing title, got %s", resp.Status)
	}
}

func TestHandleNotifyRejectsMalformedPayload(t *testing.T) {
	n := &Notifier{}
	resp := n.handleNotify("app.a", apiproto.Request{RequestID: 1, Data: json.RawMessage(`{"title":`)})
	if resp.Status != apiproto.InvalidRequest {
		t.Fatalf("expected InvalidRequest for malformed json, got %s", resp.Status)
	}
}
