package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/c360/blockflow/config"
)

// app carries what every subcommand needs once flags and config are loaded
type app struct {
	configPaths []string
	logLevel    string
	logFormat   string

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Run and manage block programs",
		Long: `blockflow executes visual block programs: control chains of action
blocks driven by dataflow between function blocks. Commands are sent to the
device over HTTP, NATS or WebSocket; programs can be kept in NATS KV.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetVersionTemplate(appName + " version {{.Version}} (build " + BuildTime + ")\n")

	flags := root.PersistentFlags()
	flags.StringSliceVarP(&a.configPaths, "config", "c", nil,
		"configuration file, JSON or YAML; repeat to layer (env: BLOCKFLOW_*)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text, json")

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
	)
	return root
}

// init loads configuration layers, applies flag overrides and installs the
// process logger
func (a *app) init(cmd *cobra.Command) error {
	loader := config.NewLoader()
	for _, path := range a.configPaths {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.logLevel != "" || a.logFormat != "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	a.logger = setupLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)

	a.logger.Debug("configuration loaded", "layers", a.configPaths)
	return nil
}
