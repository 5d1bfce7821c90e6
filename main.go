// Package main implements the radio schedule service.
package main

import (
	"context"

	"github.com/savid/radio-schedule/cmd"
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(cmd.NewRootCLI().ExecuteContext(context.Background()))
}
