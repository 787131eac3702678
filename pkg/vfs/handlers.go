package vfs

import (
	"encoding/base64"
	"encoding/json"

	"github.com/ecomter/estarter/pkg/apiproto"
)

// registrar is the subset of *kernel.Kernel the VFS needs to wire
// itself in. Defined here, consumer-side, to avoid pkg/vfs importing
// pkg/kernel (which would cycle back through pkg/permission).
type registrar interface {
	RegisterHandler(command apiproto.Command, handler func(appID string, req apiproto.Request) apiproto.Response)
}

// Register installs every VFS command handler on k. The permission
// table entries themselves already live in pkg/kernel's static
// commandPermissions map; Register only wires the handler bodies.
func (v *VFS) Register(k registrar) {
	k.RegisterHandler(apiproto.CmdReadFile, v.handleReadFile)
	k.RegisterHandler(apiproto.CmdReadText, v.handleReadText)
	k.RegisterHandler(apiproto.CmdWriteFile, v.handleWriteFile)
	k.RegisterHandler(apiproto.CmdWriteText, v.handleWriteText)
	k.RegisterHandler(apiproto.CmdDeleteFile, v.handleDeleteFile)
	k.RegisterHandler(apiproto.CmdFileExists, v.handleFileExists)
	k.RegisterHandler(apiproto.CmdGetFileInfo, v.handleGetFileInfo)
	k.RegisterHandler(apiproto.CmdCreateDirectory, v.handleCreateDirectory)
	k.RegisterHandler(apiproto.CmdListDirectory, v.handleListDirectory)
	k.RegisterHandler(apiproto.CmdDeleteDirectory, v.handleDeleteDirectory)
}

type pathArgs struct {
	Path string `json:"path"`
}

type writeArgs struct {
	Path string `json:"path"`
	Data string `json:"data,omitempty"` // base64, preferred when present
	Text string `json:"text,omitempty"` // UTF-8, used when Data is absent
}

type deleteDirArgs struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

func unmarshal(req apiproto.Request, dst any) bool {
	if len(req.Data) == 0 {
		return false
	}
	return json.Unmarshal(req.Data, dst) == nil
}

func badPath(requestID uint64) apiproto.Response {
	return apiproto.Fail(requestID, apiproto.InvalidRequest, "missing or invalid path")
}

func resultToResponse(requestID uint64, result FileResult, data any) apiproto.Response {
	if !result.Success {
		return apiproto.Fail(requestID, apiproto.Error, "%s", result.Error)
	}
	if data == nil {
		return apiproto.Ok(requestID, struct {
			BytesAffected int64 `json:"bytesAffected"`
		}{BytesAffected: result.BytesAffected})
	}
	return apiproto.Ok(requestID, data)
}

func (v *VFS) handleReadFile(appID string, req apiproto.Request) apiproto.Response {
	var args pathArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	data, result := v.ReadFile(ParsePath(args.Path), appID)
	if !result.Success {
		return apiproto.Fail(req.RequestID, apiproto.Error, "%s", result.Error)
	}
	return apiproto.Ok(req.RequestID, struct {
		Data string `json:"data"`
	}{Data: base64.StdEncoding.EncodeToString(data)})
}

func (v *VFS) handleReadText(appID string, req apiproto.Request) apiproto.Response {
	var args pathArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	text, result := v.ReadText(ParsePath(args.Path), appID)
	if !result.Success {
		return apiproto.Fail(req.RequestID, apiproto.Error, "%s", result.Error)
	}
	return apiproto.Ok(req.RequestID, struct {
		Text string `json:"text"`
	}{Text: text})
}

// payload decodes writeArgs into raw bytes: Data (base64) wins over
// Text when both are present; Data that is not valid base64 is
// rejected rather than read as text.
func (a writeArgs) payload() ([]byte, bool) {
	if a.Data != "" {
		b, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return []byte(a.Text), true
}

func (v *VFS) handleWriteFile(appID string, req apiproto.Request) apiproto.Response {
	var args writeArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	payload, ok := args.payload()
	if !ok {
		return apiproto.Fail(req.RequestID, apiproto.InvalidRequest, "invalid base64 data")
	}
	return resultToResponse(req.RequestID, v.WriteFile(ParsePath(args.Path), appID, payload), nil)
}

func (v *VFS) handleWriteText(appID string, req apiproto.Request) apiproto.Response {
	var args writeArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	return resultToResponse(req.RequestID, v.WriteText(ParsePath(args.Path), appID, args.Text), nil)
}

func (v *VFS) handleDeleteFile(appID string, req apiproto.Request) apiproto.Response {
	var args pathArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	return resultToResponse(req.RequestID, v.DeleteFile(ParsePath(args.Path), appID), nil)
}

func (v *VFS) handleFileExists(appID string, req apiproto.Request) apiproto.Response {
	var args pathArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	return apiproto.Ok(req.RequestID, struct {
		Exists bool `json:"exists"`
	}{Exists: v.FileExists(ParsePath(args.Path), appID)})
}

func (v *VFS) handleGetFileInfo(appID string, req apiproto.Request) apiproto.Response {
	var args pathArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	info, result := v.GetFileInfo(ParsePath(args.Path), appID)
	if !result.Success {
		return apiproto.Fail(req.RequestID, apiproto.NotFound, "%s", result.Error)
	}
	return apiproto.Ok(req.RequestID, info)
}

func (v *VFS) handleCreateDirectory(appID string, req apiproto.Request) apiproto.Response {
	var args pathArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	return resultToResponse(req.RequestID, v.CreateDirectory(ParsePath(args.Path), appID), nil)
}

func (v *VFS) handleListDirectory(appID string, req apiproto.Request) apiproto.Response {
	var args pathArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	entries, result := v.ListDirectory(ParsePath(args.Path), appID)
	if !result.Success {
		return apiproto.Fail(req.RequestID, apiproto.Error, "%s", result.Error)
	}
	return apiproto.Ok(req.RequestID, entries)
}

func (v *VFS) handleDeleteDirectory(appID string, req apiproto.Request) apiproto.Response {
	var args deleteDirArgs
	if !unmarshal(req, &args) || args.Path == "" {
		return badPath(req.RequestID)
	}
	return resultToResponse(req.RequestID, v.DeleteDirectory(ParsePath(args.Path), appID, args.Recursive), nil)
}
