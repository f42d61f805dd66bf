package device

import (
	"context"
	"time"

	"github.com/c360/blockflow/metric"
)

type instrumented struct {
	next      Commander
	transport string
	metrics   *metric.Metrics
}

// Instrument wraps c so every command is counted and timed under the given
// transport label. A nil metrics returns c unchanged.
func Instrument(c Commander, transport string, m *metric.Metrics) Commander {
	if m == nil {
		return c
	}
	return &instrumented{next: c, transport: transport, metrics: m}
}

func (i *instrumented) SendCommand(ctx context.Context, cmd Command) (Result, error) {
	start := time.Now()
	res, err := i.next.SendCommand(ctx, cmd)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case !res.OK:
		status = "rejected"
	}
	i.metrics.RecordDeviceCommand(i.transport, cmd.Name, status, time.Since(start))
	return res, err
}
