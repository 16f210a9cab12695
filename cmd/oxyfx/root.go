package main

import (
	"github.com/spf13/cobra"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

// app carries state shared by every subcommand once the persistent flags are parsed.
type app struct {
	configPath string
	logLevel   string
	cfg        Config
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "oxyfx",
		Short:         "Bloom and exposure post-processing for HDR images",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newRenderCommand(a),
		newViewCommand(a),
		newPyramidCommand(),
	)
	return root
}

// load reads the configuration and installs the engine logger on the command's error stream.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	common.SetLogger(logger)
	a.cfg = cfg
	return nil
}
