package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"talentcore/internal/config"
	"talentcore/internal/logger"
)

const app = "talentcore"

// cli carries state shared by subcommands after PersistentPreRunE.
type cli struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     config.Config
	log     *zap.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:           app,
		Short:         "talentcore tracks job applications through the hiring funnel",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "a config file (default is talentcore.yaml in current directory)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	root.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	root.PersistentFlags().String("storage-driver", "", "storage backend: memory|sqlite|postgres")
	root.PersistentFlags().Bool("trace", false, "write a JSON span per service operation to stderr")

	_ = c.v.BindPFlag("debug", root.PersistentFlags().Lookup("debug"))
	_ = c.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = c.v.BindPFlag("storage.driver", root.PersistentFlags().Lookup("storage-driver"))
	_ = c.v.BindPFlag("trace", root.PersistentFlags().Lookup("trace"))

	root.AddCommand(
		newServeCommand(c),
		newMigrateCommand(c),
		newAnonymizeCommand(c),
		newSweepCommand(c),
		newVersionCommand(),
	)
	return root
}

func (c *cli) init() error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.JSON, cfg.Debug)
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	c.cfg = cfg
	c.log = log
	return nil
}
