package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c360/blockflow/config"
	"github.com/c360/blockflow/device"
	"github.com/c360/blockflow/interpreter"
	"github.com/c360/blockflow/metric"
	"github.com/c360/blockflow/natsclient"
	"github.com/c360/blockflow/program"
	"github.com/c360/blockflow/runlog"
)

func newRunCmd(a *app) *cobra.Command {
	var fromStore bool

	cmd := &cobra.Command{
		Use:   "run <program.json | id>",
		Short: "Run a program until it finishes or is interrupted",
		Long: `Run executes every chain of the program in order. The first interrupt
stops the run after the current block; a second one aborts it.`,
		Example: `  # Run a local program against an HTTP device
  BLOCKFLOW_DEVICE_TRANSPORT=http BLOCKFLOW_DEVICE_URL=http://192.168.4.1 \
    blockflow run wave.json

  # Run a stored program and expose metrics
  blockflow run --from-store wave -c robot.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sigs := make(chan os.Signal, 2)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			return a.run(cmd.Context(), args[0], fromStore, sigs)
		},
	}
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "load the program from the program store by id")
	return cmd
}

// programName derives the run log name from a file path or store id
func programName(ref string, fromStore bool) string {
	if fromStore {
		return ref
	}
	base := filepath.Base(ref)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (a *app) run(ctx context.Context, ref string, fromStore bool, sigs <-chan os.Signal) error {
	cfg := a.cfg
	logger := a.logger
	registry := metric.NewMetricsRegistry()

	var client *natsclient.Client
	if fromStore || cfg.Device.Transport == config.TransportNATS || cfg.RunLog.Enabled {
		c, err := connectNATS(ctx, cfg.NATS, logger, registry)
		if err != nil {
			return err
		}
		client = c
		defer func() {
			if err := client.Close(context.Background()); err != nil {
				logger.Warn("closing NATS connection", "error", err)
			}
		}()
	}

	name := programName(ref, fromStore)
	if cfg.RunLog.Enabled {
		var rl *runlog.Handler
		logger, rl = withRunLog(logger, client, name, cfg.RunLog)
		defer func() {
			if n := rl.Dropped(); n > 0 {
				a.logger.Warn("run log entries dropped", "count", n)
			}
		}()
	}
	logger = logger.With("program", name)

	prog, err := a.loadProgram(ctx, ref, fromStore, client, logger)
	if err != nil {
		return err
	}

	var requester device.Requester
	if client != nil {
		requester = client
	}
	dev, err := buildDevice(cfg.Device, requester, logger, registry.CoreMetrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.close(); err != nil {
			logger.Warn("closing device transport", "error", err)
		}
	}()

	runner, err := interpreter.NewRunner(
		interpreter.WithSpeaker(dev.speaker),
		interpreter.WithCommander(dev.commander),
		interpreter.WithLogger(logger),
		interpreter.WithLoopDelay(cfg.Interpreter.LoopDelay.Std()),
		interpreter.WithMetrics(registry),
	)
	if err != nil {
		return err
	}

	if err := prog.Recalculate(); err != nil {
		logger.Warn("initial propagation incomplete", "error", err)
	}

	token := interpreter.NewToken()
	g, gctx := errgroup.WithContext(ctx)
	runCtx, abort := context.WithCancel(gctx)
	defer abort()

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if client != nil {
			server.AddHealthCheck("nats", client.Ping)
		}
		logger.Info("serving metrics", "address", server.Address())
		g.Go(func() error { return server.Serve(runCtx) })
	}

	g.Go(func() error {
		for {
			select {
			case <-runCtx.Done():
				return nil
			case sig := <-sigs:
				if !token.Stopped() {
					logger.Info("stopping after the current block", "signal", sig.String())
					token.Stop()
					continue
				}
				logger.Warn("aborting run", "signal", sig.String())
				abort()
				return nil
			}
		}
	})

	g.Go(func() error {
		defer abort()
		return runner.Run(runCtx, prog, token)
	})

	err = g.Wait()
	logSummary(logger, registry)
	return err
}

// loadProgram reads the program from a file or, with fromStore, from the
// program store using the already open client
func (a *app) loadProgram(ctx context.Context, ref string, fromStore bool, client *natsclient.Client, logger *slog.Logger) (*program.Program, error) {
	if !fromStore {
		return readProgramFile(ref, logger)
	}

	store, err := newStoreFromClient(ctx, client, a.cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	doc, err := store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded program from store", "id", doc.ID, "version", doc.Version)
	return doc.Load(program.WithLogger(logger))
}

func logSummary(logger *slog.Logger, registry *metric.MetricsRegistry) {
	totals, err := registry.CounterTotals("blockflow_")
	if err != nil {
		logger.Debug("metrics summary unavailable", "error", err)
		return
	}
	logger.Info("run summary",
		"blocks_executed", totals["blockflow_interpreter_blocks_executed_total"],
		"block_errors", totals["blockflow_interpreter_block_errors_total"],
		"device_commands", totals["blockflow_device_commands_total"],
	)
}
