package main

import (
	"fmt"

	"github.com/spf13/cobra"

	schemadocs "talentcore/docs/schema"
)

var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build and lifecycle document versions",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			lifecycle, err := schemadocs.LifecycleVersion()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (lifecycle %s)\n", app, version, lifecycle)
			return err
		},
	}
}
