package manifest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ecomter/estarter/pkg/log"
)

// Install extracts the app package at zipPath (a ZIP archive whose
// root holds manifest.json and the entry file(s)) into
// <appsRoot>/<id>/, overwriting any existing install, and returns the
// parsed manifest.
func Install(zipPath, appsRoot string) (Manifest, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return Manifest{}, fmt.Errorf("opening package %q: %w", zipPath, err)
	}
	defer r.Close()

	manifestFile := findManifest(r.File)
	if manifestFile == nil {
		return Manifest{}, fmt.Errorf("package %q has no manifest.json at its root", zipPath)
	}
	raw, err := readZipFile(manifestFile)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest.json from %q: %w", zipPath, err)
	}
	m, err := Parse(raw)
	if err != nil {
		return Manifest{}, err
	}

	dest := filepath.Join(appsRoot, m.ID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("creating install dir %q: %w", dest, err)
	}

	for _, f := range r.File {
		if err := extractEntry(f, dest); err != nil {
			return Manifest{}, fmt.Errorf("installing %q: extracting %q: %w", m.ID, f.Name, err)
		}
	}

	log.Infof("manifest: installed %s %s into %s", m.ID, m.Version, dest)
	return m, nil
}

func findManifest(files []*zip.File) *zip.File {
	for _, f := range files {
		if f.Name == "manifest.json" {
			return f
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// extractEntry writes one zip entry under dest, rejecting any entry
// whose cleaned path would escape dest (zip-slip).
func extractEntry(f *zip.File, dest string) error {
	target := filepath.Join(dest, f.Name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("entry %q escapes install directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
