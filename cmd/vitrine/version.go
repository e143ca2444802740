package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitrine/vitrine/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			info := version.Get()
			if short {
				fmt.Fprintln(out, info.String())
				return
			}
			fmt.Fprintf(out, "Vitrine - Grounded Conversational Product Search\n")
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Git Commit: %s\n", info.GitCommit)
			fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print a single line")
	return cmd
}
