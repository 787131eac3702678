// Command estarterd is the eStarter runtime daemon: it owns the
// Kernel, the Permission Manager, the Virtual File System, and the App
// Host Factory, and launches every installed background app.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	_ "github.com/ecomter/estarter/pkg/apphost/process"
	_ "github.com/ecomter/estarter/pkg/apphost/wasm"
	"github.com/ecomter/estarter/pkg/kernel"
	"github.com/ecomter/estarter/pkg/log"
	"github.com/ecomter/estarter/pkg/notify"
	"github.com/ecomter/estarter/pkg/permission"
	"github.com/ecomter/estarter/pkg/permset"
	"github.com/ecomter/estarter/pkg/vfs"
)

// adminAppID is the fixed caller identity estarterctl connections are
// registered under: a trusted, fully-privileged (but never Admin/
// Kernel-bit) in-process caller of kernel.HandleAPI, not a hosted app.
const adminAppID = "estarterctl"

var (
	appsRoot   = flag.String("apps-root", "/var/lib/estarter/apps", "directory holding installed app packages")
	vfsRoot    = flag.String("vfs-root", "/var/lib/estarter/vfs", "root of the sandboxed virtual file system")
	dataDir    = flag.String("data-dir", "/var/lib/estarter", "directory holding the permission grant and policy stores")
	socketPath = flag.String("socket", "/run/estarter/estarterd.sock", "Unix-domain socket exposing the JSON-RPC bridge to estarterctl")
	osName     = flag.String("os-name", "estarter", "operating system name reported by GetSystemInfo")
	version    = flag.String("version", "0.1.0", "daemon version reported by GetSystemInfo")
	debug      = flag.Bool("debug", false, "enable debug-level logging")
)

func main() {
	flag.Parse()
	log.SetLevel(*debug)
	if err := run(); err != nil {
		log.Errorf("estarterd: %v", err)
		os.Exit(1)
	}
}

func run() error {
	k := kernel.New(*osName, *version)
	defer k.Close()

	store := permission.NewStore(filepath.Join(*dataDir, "grants.json"))
	policies := permission.NewPolicyStore(filepath.Join(*dataDir, "policies.json"))
	mgr := permission.NewManager(k, store, policies, func(appID string, p permset.Permission) {
		log.Infof("estarterd: %s is requesting consent for %s", appID, p)
	})
	k.AttachPermissionManager(mgr)

	fs, err := vfs.New(*vfsRoot)
	if err != nil {
		return fmt.Errorf("initializing vfs: %w", err)
	}
	fs.Register(k)

	if notifier, err := notify.Connect(); err != nil {
		log.Warningf("estarterd: desktop notifications unavailable: %v", err)
	} else {
		defer notifier.Close()
		notifier.Register(k)
	}

	k.RegisterProcess(adminAppID, os.Getpid(), *version, permset.Full)
	defer k.UnregisterProcess(adminAppID)

	if err := os.MkdirAll(filepath.Dir(*socketPath), 0o755); err != nil {
		return fmt.Errorf("preparing socket directory: %w", err)
	}
	os.Remove(*socketPath)
	listener, err := net.Listen("unix", *socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", *socketPath, err)
	}
	defer listener.Close()

	hosts := launchInstalledApps(k, fs, *appsRoot)
	defer stopAll(hosts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveAdmin(gctx, listener, k) })

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("estarterd: systemd readiness notify: %v", err)
	} else if ok {
		log.Infof("estarterd: notified systemd readiness")
	}

	<-gctx.Done()
	listener.Close()
	return g.Wait()
}
