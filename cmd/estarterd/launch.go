package main

import (
	"os"
	"path/filepath"

	"github.com/ecomter/estarter/pkg/apphost"
	"github.com/ecomter/estarter/pkg/kernel"
	"github.com/ecomter/estarter/pkg/log"
	"github.com/ecomter/estarter/pkg/manifest"
	"github.com/ecomter/estarter/pkg/vfs"
)

// launchInstalledApps scans appsRoot for installed packages and
// starts every one declared background: true. Foreground
// apps wait for an explicit launch request from a shell/launcher UI,
// which is outside this daemon's scope.
func launchInstalledApps(k *kernel.Kernel, fs *vfs.VFS, appsRoot string) []apphost.Host {
	entries, err := os.ReadDir(appsRoot)
	if err != nil {
		log.Warningf("estarterd: reading apps root %s: %v", appsRoot, err)
		return nil
	}

	var hosts []apphost.Host
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		installDir := filepath.Join(appsRoot, entry.Name())
		data, err := os.ReadFile(filepath.Join(installDir, "manifest.json"))
		if err != nil {
			continue
		}
		m, err := manifest.Parse(data)
		if err != nil {
			log.Warningf("estarterd: skipping %s: invalid manifest: %v", entry.Name(), err)
			continue
		}
		if !m.Background {
			continue
		}
		if !m.IsRuntimeSupported() {
			log.Warningf("estarterd: skipping %s: runtime %s not supported", m.ID, m.Runtime)
			continue
		}
		if err := fs.InitializeAppSandbox(m.ID); err != nil {
			log.Warningf("estarterd: initializing sandbox for %s: %v", m.ID, err)
			continue
		}

		host, err := apphost.Launch(apphost.LaunchSpec{
			Manifest:   m,
			Policy:     apphost.PolicyFromManifest(m),
			InstallDir: installDir,
			Kernel:     k,
		})
		if err != nil {
			log.Warningf("estarterd: launching %s: %v", m.ID, err)
			continue
		}
		log.Infof("estarterd: launched %s (%s)", m.ID, m.Runtime)
		hosts = append(hosts, host)
	}
	return hosts
}

func stopAll(hosts []apphost.Host) {
	for _, h := range hosts {
		if err := h.Dispose(); err != nil {
			log.Warningf("estarterd: disposing %s: %v", h.AppID(), err)
		}
	}
}
