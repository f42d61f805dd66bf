package device

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	cerrors "github.com/c360/blockflow/errors"
)

// WebSocketCommander keeps one connection to the device and exchanges a
// JSON command frame for a JSON result frame. Only one request is in
// flight at a time; a broken connection is redialed on the next command.
type WebSocketCommander struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	timeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebSocketCommander(url string, header http.Header, timeout time.Duration) *WebSocketCommander {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebSocketCommander{
		url:     url,
		header:  header,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		timeout: timeout,
	}
}

func (w *WebSocketCommander) SendCommand(ctx context.Context, cmd Command) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	conn, err := w.connect(ctx)
	if err != nil {
		return Result{}, err
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	// unblock a pending read when the caller gives up
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteJSON(cmd); err != nil {
		w.drop()
		return Result{}, w.failure(ctx, "write command", err)
	}

	var res Result
	if err := conn.ReadJSON(&res); err != nil {
		w.drop()
		return Result{}, w.failure(ctx, "read result", err)
	}
	return res, nil
}

func (w *WebSocketCommander) connect(ctx context.Context) (*websocket.Conn, error) {
	if w.conn != nil {
		return w.conn, nil
	}
	conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		return nil, w.failure(ctx, "dial "+w.url, err)
	}
	w.conn = conn
	return conn, nil
}

func (w *WebSocketCommander) failure(ctx context.Context, action string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cerrors.WrapTransient(fmt.Errorf("%v: %w", err, ctxErr), "WebSocketCommander", "SendCommand", action)
	}
	return cerrors.WrapTransient(fmt.Errorf("%v: %w", err, cerrors.ErrDeviceFailure), "WebSocketCommander", "SendCommand", action)
}

func (w *WebSocketCommander) drop() {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
}

// Close closes the current connection, if any
func (w *WebSocketCommander) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.drop()
	return err
}
