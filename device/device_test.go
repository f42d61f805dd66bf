package device

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	cerrors "github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/metric"
)

func fastRetry() cerrors.RetryConfig {
	return cerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func TestHTTPCommander_PostsToSendData(t *testing.T) {
	var got Command
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, SendDataPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true,"data":{"angle":45}}`)
	}))
	defer srv.Close()

	h, err := NewHTTPCommander(srv.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+SendDataPath, h.Endpoint())

	res, err := h.SendCommand(context.Background(), Command{Name: "servo", Args: map[string]any{"channel": 1, "angle": 45}})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.JSONEq(t, `{"angle":45}`, string(res.Data))
	assert.Equal(t, "servo", got.Name)
	assert.Equal(t, float64(45), got.Args["angle"])
}

func TestHTTPCommander_EmptyBodyIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h, err := NewHTTPCommander(srv.URL)
	require.NoError(t, err)

	res, err := h.SendCommand(context.Background(), Command{Name: "ping"})
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestHTTPCommander_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	h, err := NewHTTPCommander(srv.URL, WithRetry(fastRetry()), WithRateLimit(0, 0))
	require.NoError(t, err)

	res, err := h.SendCommand(context.Background(), Command{Name: "servo"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPCommander_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h, err := NewHTTPCommander(srv.URL, WithRetry(fastRetry()), WithRateLimit(0, 0))
	require.NoError(t, err)

	_, err = h.SendCommand(context.Background(), Command{Name: "servo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrDeviceFailure)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPCommander_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	h, err := NewHTTPCommander(srv.URL, WithRetry(fastRetry()))
	require.NoError(t, err)

	_, err = h.SendCommand(context.Background(), Command{Name: "servo"})
	require.Error(t, err)
	assert.True(t, cerrors.IsInvalid(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPCommander_MalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	h, err := NewHTTPCommander(srv.URL)
	require.NoError(t, err)

	_, err = h.SendCommand(context.Background(), Command{Name: "servo"})
	assert.ErrorIs(t, err, cerrors.ErrParsingFailed)
}

func TestHTTPCommander_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h, err := NewHTTPCommander(srv.URL, WithRetry(fastRetry()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = h.SendCommand(ctx, Command{Name: "servo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPCommander_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	h, err := NewHTTPCommander(srv.URL, WithRateLimit(rate.Every(50*time.Millisecond), 1))
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := h.SendCommand(context.Background(), Command{Name: "ping"})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestNewHTTPCommander_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "ftp://device", "http://"} {
		_, err := NewHTTPCommander(u)
		assert.ErrorIs(t, err, cerrors.ErrInvalidConfig, u)
	}
}

type fakeRequester struct {
	subject string
	data    []byte
	reply   []byte
	err     error
}

func (f *fakeRequester) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	f.subject, f.data = subject, data
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a deadline")
	}
	return f.reply, f.err
}

func TestNATSCommander(t *testing.T) {
	req := &fakeRequester{reply: []byte(`{"ok":false,"error":"jammed"}`)}
	n := NewNATSCommander(req, "", 0)
	assert.Equal(t, DefaultCommandSubject, n.Subject())

	res, err := n.SendCommand(context.Background(), Command{Name: "servo", Args: map[string]any{"angle": 10}})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "jammed", res.Error)
	assert.Equal(t, DefaultCommandSubject, req.subject)
	assert.JSONEq(t, `{"command":"servo","args":{"angle":10}}`, string(req.data))

	req.err = errors.New("no responders")
	_, err = n.SendCommand(context.Background(), Command{Name: "servo"})
	assert.ErrorIs(t, err, cerrors.ErrDeviceFailure)
	assert.True(t, cerrors.IsTransient(err))
}

func newEchoDevice(t *testing.T, handle func(Command) Result) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if err := conn.WriteJSON(handle(cmd)); err != nil {
				return
			}
		}
	}))
}

func TestWebSocketCommander(t *testing.T) {
	srv := newEchoDevice(t, func(cmd Command) Result {
		return Result{OK: cmd.Name == "servo", Error: "unknown " + cmd.Name}
	})
	defer srv.Close()

	w := NewWebSocketCommander("ws"+strings.TrimPrefix(srv.URL, "http"), nil, time.Second)
	defer w.Close()

	res, err := w.SendCommand(context.Background(), Command{Name: "servo"})
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = w.SendCommand(context.Background(), Command{Name: "dance"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "unknown dance", res.Error)
}

func TestWebSocketCommander_TimeoutWhenDeviceSilent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	w := NewWebSocketCommander("ws"+strings.TrimPrefix(srv.URL, "http"), nil, 50*time.Millisecond)
	defer w.Close()

	_, err := w.SendCommand(context.Background(), Command{Name: "servo"})
	require.Error(t, err)
	assert.True(t, cerrors.IsTransient(err))
}

func TestWebSocketCommander_DialFailure(t *testing.T) {
	w := NewWebSocketCommander("ws://127.0.0.1:1/none", nil, 100*time.Millisecond)
	_, err := w.SendCommand(context.Background(), Command{Name: "servo"})
	require.Error(t, err)
	assert.True(t, cerrors.IsTransient(err))
	assert.NoError(t, w.Close())
}

func TestCommandSpeaker(t *testing.T) {
	var sent Command
	c := CommanderFunc(func(_ context.Context, cmd Command) (Result, error) {
		sent = cmd
		return Result{OK: cmd.Args["text"] != "fail"}, nil
	})
	s := NewCommandSpeaker(c)

	require.NoError(t, s.Speak(context.Background(), "hello"))
	assert.Equal(t, SpeakCommand, sent.Name)
	assert.Equal(t, "hello", sent.Args["text"])

	err := s.Speak(context.Background(), "fail")
	assert.ErrorIs(t, err, cerrors.ErrDeviceFailure)
}

func TestLogSpeakerAndNop(t *testing.T) {
	var buf strings.Builder
	s := NewLogSpeaker(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, s.Speak(context.Background(), "hi there"))
	assert.Contains(t, buf.String(), "hi there")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Speak(ctx, "x"), context.Canceled)

	res, err := NopCommander{}.SendCommand(context.Background(), Command{Name: "x"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	_, err = NopCommander{}.SendCommand(ctx, Command{Name: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInstrument(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()

	replies := []Result{{OK: true}, {OK: false, Error: "busy"}}
	calls := 0
	c := Instrument(CommanderFunc(func(_ context.Context, _ Command) (Result, error) {
		defer func() { calls++ }()
		if calls < len(replies) {
			return replies[calls], nil
		}
		return Result{}, cerrors.ErrDeviceFailure
	}), "http", core)

	for range 3 {
		_, _ = c.SendCommand(context.Background(), Command{Name: "servo"})
	}

	assert.Equal(t, float64(1), promtestutil.ToFloat64(core.DeviceCommands.WithLabelValues("http", "servo", "ok")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(core.DeviceCommands.WithLabelValues("http", "servo", "rejected")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(core.DeviceCommands.WithLabelValues("http", "servo", "error")))

	nop := NopCommander{}
	assert.Equal(t, Commander(nop), Instrument(nop, "nop", nil))
}
