package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/ecomter/estarter/pkg/apiproto"
)

// psCmd implements subcommands.Command for "ps".
type psCmd struct{}

func (*psCmd) Name() string     { return "ps" }
func (*psCmd) Synopsis() string { return "list running apps" }
func (*psCmd) Usage() string    { return "ps\n" }
func (*psCmd) SetFlags(*flag.FlagSet) {}

type processEntry struct {
	AppID   string `json:"appId"`
	Pid     int    `json:"pid"`
	Version string `json:"version"`
	State   string `json:"state"`
}

func (*psCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	resp, err := callAPI(ctx, *socketPath, apiproto.CmdGetProcessList, nil)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	if resp.Status != apiproto.Success {
		fmt.Printf("estarterd replied %s: %s\n", resp.Status, resp.Error)
		return subcommands.ExitFailure
	}
	var entries []processEntry
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		fmt.Println("decoding response:", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "APP ID\tPID\tVERSION\tSTATE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.AppID, e.Pid, e.Version, e.State)
	}
	w.Flush()
	return subcommands.ExitSuccess
}
