package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ecomter/estarter/pkg/manifest"
)

// installCmd implements subcommands.Command for "install". It extracts
// a package zip directly into the apps root estarterd scans at
// startup; a freshly installed background app picks it up on the
// daemon's next restart.
type installCmd struct {
	appsRoot string
}

func (*installCmd) Name() string     { return "install" }
func (*installCmd) Synopsis() string { return "install an app package from a zip file" }
func (*installCmd) Usage() string {
	return "install [-apps-root dir] <package.zip>\n"
}

func (c *installCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.appsRoot, "apps-root", "/var/lib/estarter/apps", "directory holding installed app packages")
}

func (c *installCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Println(c.Usage())
		return subcommands.ExitUsageError
	}
	m, err := manifest.Install(f.Arg(0), c.appsRoot)
	if err != nil {
		fmt.Println("install failed:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("installed %s %s (%s) into %s/%s\n", m.ID, m.Version, m.Runtime, c.appsRoot, m.ID)
	return subcommands.ExitSuccess
}
