//go:build !linux && !windows

package reslimit

// acquirePlatform has no implementation outside Linux and Windows;
// callers fall back to running without OS-level resource enforcement.
func acquirePlatform(name string, limits Limits) (Handle, error) {
	return nil, ErrUnsupported
}
