package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ecomter/estarter/pkg/apiproto"
)

// infoCmd implements subcommands.Command for "info".
type infoCmd struct{}

func (*infoCmd) Name() string     { return "info" }
func (*infoCmd) Synopsis() string { return "print estarterd's host system info" }
func (*infoCmd) Usage() string    { return "info\n" }
func (*infoCmd) SetFlags(*flag.FlagSet) {}

type systemInfo struct {
	OS            string `json:"os"`
	Version       string `json:"version"`
	ProcessCount  int    `json:"processCount"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	NetworkUp     bool   `json:"networkUp"`
}

func (*infoCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	resp, err := callAPI(ctx, *socketPath, apiproto.CmdGetSystemInfo, nil)
	if err != nil {
		fmt.Println(err)
		return subcommands.ExitFailure
	}
	if resp.Status != apiproto.Success {
		fmt.Printf("estarterd replied %s: %s\n", resp.Status, resp.Error)
		return subcommands.ExitFailure
	}
	var info systemInfo
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		fmt.Println("decoding response:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("os:            %s\n", info.OS)
	fmt.Printf("version:       %s\n", info.Version)
	fmt.Printf("processes:     %d\n", info.ProcessCount)
	fmt.Printf("uptime:        %ds\n", info.UptimeSeconds)
	fmt.Printf("network up:    %v\n", info.NetworkUp)
	return subcommands.ExitSuccess
}
