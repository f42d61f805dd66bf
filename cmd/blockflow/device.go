package main

import (
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/c360/blockflow/config"
	"github.com/c360/blockflow/device"
	"github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/metric"
)

// deviceSetup is the commander and speaker a run talks to
type deviceSetup struct {
	commander device.Commander
	speaker   device.Speaker
	close     func() error
}

// buildDevice picks the transport named in cfg. requester is only used by
// the nats transport and may be nil otherwise; m may be nil.
func buildDevice(cfg config.DeviceConfig, requester device.Requester, logger *slog.Logger, m *metric.Metrics) (*deviceSetup, error) {
	var (
		commander device.Commander
		closeFn   = func() error { return nil }
	)

	switch cfg.Transport {
	case config.TransportNone, "":
		return &deviceSetup{
			commander: device.NopCommander{},
			speaker:   device.NewLogSpeaker(logger),
			close:     closeFn,
		}, nil
	case config.TransportHTTP:
		h, err := device.NewHTTPCommander(cfg.URL,
			device.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.Burst),
			device.WithRetry(cfg.Retry.ToRetryConfig()),
			device.WithHTTPLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		commander = h
	case config.TransportNATS:
		if requester == nil {
			return nil, errors.WrapInvalid(fmt.Errorf("nats transport without a connection: %w", errors.ErrMissingConfig),
				"blockflow", "buildDevice", "select transport")
		}
		commander = device.NewNATSCommander(requester, cfg.Subject, cfg.Timeout.Std())
	case config.TransportWebSocket:
		ws := device.NewWebSocketCommander(cfg.URL, nil, cfg.Timeout.Std())
		commander = ws
		closeFn = ws.Close
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("transport %q: %w", cfg.Transport, errors.ErrInvalidConfig),
			"blockflow", "buildDevice", "select transport")
	}

	commander = device.Instrument(commander, cfg.Transport, m)
	return &deviceSetup{
		commander: commander,
		speaker:   device.NewCommandSpeaker(commander),
		close:     closeFn,
	}, nil
}
