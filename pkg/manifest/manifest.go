// Package manifest parses and installs per-app manifest.json packages
// and resolves the permissions, runtime, and resource
// limits they declare.
package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohae/deepcopy"
	"golang.org/x/mod/semver"

	"github.com/ecomter/estarter/pkg/permset"
)

// Runtime selects the App Host variant.
type Runtime string

const (
	RuntimeNative Runtime = "Native"
	RuntimeWasm   Runtime = "Wasm"
	RuntimeDotnet Runtime = "Dotnet"
)

// Manifest is the parsed per-app manifest.json.
type Manifest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Version     string `json:"version,omitempty"`
	Category    string `json:"category,omitempty"`

	ExePath string `json:"exePath,omitempty"`
	Entry   string `json:"entry,omitempty"`

	Arguments  []string `json:"arguments,omitempty"`
	Background bool     `json:"background,omitempty"`
	TileSize   string   `json:"tileSize,omitempty"`

	Permissions []string `json:"permissions,omitempty"`

	MinAPIVersion int     `json:"minApiVersion"`
	Sandboxed     bool    `json:"sandboxed"`
	Runtime       Runtime `json:"runtime"`

	MemoryLimitMb     int  `json:"memoryLimitMb"`
	MaxProcesses      int  `json:"maxProcesses"`
	CPUQuota          int  `json:"cpuQuota"`
	NetworkAllowed    bool `json:"networkAllowed"`
	MaxRuntimeSeconds int  `json:"maxRuntimeSeconds"`
}

// Parse decodes and validates raw manifest.json bytes. Only id is
// mandatory; everything else defaults.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decoding manifest: %w", err)
	}
	if strings.TrimSpace(m.ID) == "" {
		return Manifest{}, fmt.Errorf("manifest missing mandatory id")
	}
	if m.Runtime == "" {
		m.Runtime = RuntimeNative
	}
	if m.Version != "" && !semver.IsValid(normalizeSemver(m.Version)) {
		return Manifest{}, fmt.Errorf("manifest %q: invalid version %q", m.ID, m.Version)
	}
	return m, nil
}

func normalizeSemver(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// Clone returns a deep copy of m, safe for a caller to mutate without
// aliasing the original's Arguments/Permissions slices. The launch
// path in this tree passes the parsed Manifest by value and does not
// call Clone.
func (m Manifest) Clone() Manifest {
	return deepcopy.Copy(m).(Manifest)
}

// EntryPath resolves the launchable entry, falling back to the legacy
// exePath field.
func (m Manifest) EntryPath() string {
	if m.Entry != "" {
		return m.Entry
	}
	return m.ExePath
}

// ResolvedPermissions maps the manifest's declared permission names to
// bits, ignoring unknown entries and resolving case-insensitively.
func (m Manifest) ResolvedPermissions() permset.Permission {
	var out permset.Permission
	for _, name := range m.Permissions {
		if p, ok := permset.Parse(name); ok {
			out |= p
		}
	}
	return out
}

// IsRuntimeSupported reports whether this build can host m.Runtime.
// Dotnet is declared in the manifest schema but has no host
// implementation; the App Host Factory turns this into NotSupported
// rather than failing to parse the manifest at all.
func (m Manifest) IsRuntimeSupported() bool {
	switch m.Runtime {
	case RuntimeNative, RuntimeWasm:
		return true
	default:
		return false
	}
}
