package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/blockflow/config"
	"github.com/c360/blockflow/metric"
	"github.com/c360/blockflow/natsclient"
	"github.com/c360/blockflow/programstore"
)

const connectTimeout = 10 * time.Second

// connectNATS creates a client from cfg and waits until it is connected.
// registry may be nil.
func connectNATS(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger, registry *metric.MetricsRegistry) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait.Std()),
		natsclient.WithTimeout(cfg.Timeout.Std()),
		natsclient.WithName(cfg.Name),
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if registry != nil {
		opts = append(opts, natsclient.WithMetrics(registry))
	}

	client, err := natsclient.NewClient(cfg.URL(), opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to NATS", "url", cfg.URL())
	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return nil, err
	}
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}
	return client, nil
}

// openStore connects to NATS and opens the program bucket. The returned
// close function releases the connection.
func (a *app) openStore(ctx context.Context) (*programstore.Store, func(), error) {
	client, err := connectNATS(ctx, a.cfg.NATS, a.logger, nil)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(context.Background()); err != nil {
			a.logger.Warn("closing NATS connection", "error", err)
		}
	}

	store, err := newStoreFromClient(ctx, client, a.cfg.Store, a.logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func newStoreFromClient(ctx context.Context, client *natsclient.Client, cfg config.StoreConfig, logger *slog.Logger) (*programstore.Store, error) {
	return programstore.NewStore(ctx, client,
		programstore.WithBucket(cfg.Bucket),
		programstore.WithHistory(uint8(cfg.History)),
		programstore.WithLogger(logger),
	)
}
