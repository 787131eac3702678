package kernel

import (
	"encoding/json"

	"github.com/ecomter/estarter/pkg/apiproto"
	"github.com/ecomter/estarter/pkg/permset"
)

// unmarshalArgs decodes req.Data into dst, treating an empty payload
// as a no-op rather than an error (many commands have no arguments).
func unmarshalArgs(req apiproto.Request, dst any) error {
	if len(req.Data) == 0 {
		return nil
	}
	return json.Unmarshal(req.Data, dst)
}

func permLookup(name string) (permset.Permission, bool) {
	return permset.Parse(name)
}
