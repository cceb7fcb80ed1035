package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ranger server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]string
			if err := opts.call("GET", "/health", nil, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp["status"])
			fmt.Fprintf(out, "Server URL: %s\n", opts.server)
			fmt.Fprintf(out, "Version: %s (%s)\n", resp["version"], resp["commit"])
			return nil
		},
	}
}
