// Command estarterctl is the operator CLI: it talks to a running
// estarterd over the same JSON-RPC bridge app hosts use, and installs
// app packages locally without going through the daemon.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

var socketPath = flag.String("socket", "/run/estarter/estarterd.sock", "Unix-domain socket exposing estarterd's JSON-RPC bridge")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(pingCmd), "")
	subcommands.Register(new(infoCmd), "")
	subcommands.Register(new(psCmd), "")
	subcommands.Register(new(installCmd), "")

	flag.Parse()

	exitCode := subcommands.Execute(context.Background())
	os.Exit(int(exitCode))
}
