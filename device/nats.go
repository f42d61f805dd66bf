package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cerrors "github.com/c360/blockflow/errors"
)

// Requester is the request/reply surface of a NATS connection.
// natsclient.Client satisfies it.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// NATSCommander sends each command as a NATS request and waits for the reply
type NATSCommander struct {
	conn    Requester
	subject string
	timeout time.Duration
}

// DefaultCommandSubject is used when no subject is configured
const DefaultCommandSubject = "blockflow.device.command"

func NewNATSCommander(conn Requester, subject string, timeout time.Duration) *NATSCommander {
	if subject == "" {
		subject = DefaultCommandSubject
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSCommander{conn: conn, subject: subject, timeout: timeout}
}

func (n *NATSCommander) Subject() string { return n.subject }

func (n *NATSCommander) SendCommand(ctx context.Context, cmd Command) (Result, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return Result{}, cerrors.WrapInvalid(err, "NATSCommander", "SendCommand", "encode command")
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	reply, err := n.conn.Request(ctx, n.subject, data)
	if err != nil {
		return Result{}, cerrors.WrapTransient(fmt.Errorf("%v: %w", err, cerrors.ErrDeviceFailure),
			"NATSCommander", "SendCommand", "request "+n.subject)
	}
	return decodeResult(reply)
}
