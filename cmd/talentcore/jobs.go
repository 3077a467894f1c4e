package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema to the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), c.cfg, c.log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c.log.Info("schema applied", zap.String("driver", c.cfg.Storage.Driver))
			return rt.Close()
		},
	}
}

func newAnonymizeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "anonymize <application-id>...",
		Short: "Anonymize applications that are past retention",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), c.cfg, c.log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, id := range args {
				done, err := rt.svc.AnonymizeApplication(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("anonymize %s: %w", id, err)
				}
				if err := enc.Encode(map[string]any{"application_id": id, "anonymized": done}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newSweepCommand(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Anonymize every terminal application past the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), c.cfg, c.log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			report, err := rt.svc.SweepRetention(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum applications to anonymize (0 means all)")
	return cmd
}
