package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ecomter/estarter/pkg/apiproto"
)

// pingCmd implements subcommands.Command for "ping".
type pingCmd struct{}

func (*pingCmd) Name() string     { return "ping" }
func (*pingCmd) Synopsis() string { return "check that estarterd is reachable" }
func (*pingCmd) Usage() string    { return "ping\n" }
func (*pingCmd) SetFlags(*flag.FlagSet) {}

func (*pingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	resp, err := callAPI(ctx, *socketPath, apiproto.CmdPing, nil)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	if resp.Status != apiproto.Success {
		fmt.Printf("estarterd replied %s: %s\n", resp.Status, resp.Error)
		return subcommands.ExitFailure
	}
	fmt.Println("estarterd is up")
	return subcommands.ExitSuccess
}
