package interpreter

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/c360/blockflow/device"
	cerrors "github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/metric"
	"github.com/c360/blockflow/program"
	"github.com/c360/blockflow/testutil"
)

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *testutil.RecordingSpeaker) {
	t.Helper()

	speaker := testutil.NewRecordingSpeaker()
	opts = append([]Option{WithSpeaker(speaker), WithLoopDelay(0)}, opts...)
	r, err := NewRunner(opts...)
	require.NoError(t, err)
	return r, speaker
}

// failingBlock wraps a real action block and replaces its Run
type failingBlock struct {
	program.ActionBlock
	err error
}

func (f *failingBlock) Run(context.Context, program.Executor) error { return f.err }

func TestNewRunner_Defaults(t *testing.T) {
	r, err := NewRunner()
	require.NoError(t, err)

	assert.Equal(t, StateIdle, r.State())
	assert.Equal(t, DefaultLoopDelay, r.loopDelay)
	assert.IsType(t, &device.LogSpeaker{}, r.speaker)
	assert.IsType(t, device.NopCommander{}, r.commander)
	assert.Nil(t, r.metrics)
}

func TestRunner_RunsChainsInProgramOrder(t *testing.T) {
	r, speaker := newTestRunner(t)

	prog := testutil.LinearProgram(t, "one", "two")
	testutil.ChainOf(t, prog, testutil.Speaks("three")...)

	require.Len(t, TopActions(prog), 2)
	require.NoError(t, r.Run(context.Background(), prog, NewToken()))

	assert.Equal(t, []string{"one", "two", "three"}, speaker.Spoken())
	assert.Equal(t, StateIdle, r.State())
}

func TestRunner_RunFromRunsOneChain(t *testing.T) {
	r, speaker := newTestRunner(t)

	prog := testutil.LinearProgram(t, "one")
	second := testutil.Speaks("two", "three")
	testutil.ChainOf(t, prog, second...)

	require.NoError(t, r.RunFrom(context.Background(), second[0], nil))
	assert.Equal(t, []string{"two", "three"}, speaker.Spoken())

	require.NoError(t, r.RunFrom(context.Background(), nil, nil))
}

func TestRunner_Branch(t *testing.T) {
	tests := []struct {
		name      string
		condition float64
		expected  []string
	}{
		{"true runs inner chain", 1, []string{"inside", "after"}},
		{"false skips inner chain", 0, []string{"after"}},
		{"only exactly one is true", 2, []string{"after"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, speaker := newTestRunner(t)
			f := testutil.BranchProgram(t, tt.condition, "inside", "after")

			require.NoError(t, r.Run(context.Background(), f.Program, NewToken()))
			assert.Equal(t, tt.expected, speaker.Spoken())
		})
	}
}

func TestRunner_EmptyLoopFallsThrough(t *testing.T) {
	r, speaker := newTestRunner(t)

	prog := program.NewProgram()
	testutil.ChainOf(t, prog, append([]program.ActionBlock{program.NewStart(), program.NewLoop()},
		testutil.Speaks("after")...)...)

	require.NoError(t, r.Run(context.Background(), prog, NewToken()))
	assert.Equal(t, []string{"after"}, speaker.Spoken())
}

func TestRunner_StopEndsLoopAfterCurrentBlock(t *testing.T) {
	r, speaker := newTestRunner(t)
	token := NewToken()

	var count atomic.Int32
	speaker.OnSpeak = func(_ context.Context, text string) error {
		if text == "a" && count.Add(1) == 3 {
			token.Stop()
		}
		return nil
	}

	prog, _ := testutil.LoopProgram(t, "a", "b")
	require.NoError(t, r.Run(context.Background(), prog, token))

	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, speaker.Spoken())
	assert.Equal(t, StateCancelled, r.State())
}

func TestRunner_StopFromAnotherGoroutine(t *testing.T) {
	r, speaker := newTestRunner(t)

	started := make(chan struct{}, 1)
	speaker.OnSpeak = func(context.Context, string) error {
		select {
		case started <- struct{}{}:
		default:
		}
		return nil
	}

	prog, _ := testutil.LoopProgram(t, "tick")
	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), prog, NewToken())
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never started")
	}
	r.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Equal(t, StateCancelled, r.State())
}

func TestRunner_ContextCancelAbortsSleep(t *testing.T) {
	r, speaker := newTestRunner(t)

	sleep := program.NewSleep()
	sleep.SetSeconds(10)
	prog := program.NewProgram()
	testutil.ChainOf(t, prog, append([]program.ActionBlock{program.NewStart(), sleep},
		testutil.Speaks("never")...)...)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, prog, NewToken())

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, speaker.Spoken())
	assert.Equal(t, StateCancelled, r.State())
}

func TestRunner_RejectsConcurrentRun(t *testing.T) {
	r, speaker := newTestRunner(t)

	started := make(chan struct{})
	release := make(chan struct{})
	speaker.OnSpeak = func(context.Context, string) error {
		close(started)
		<-release
		return nil
	}

	prog := testutil.LinearProgram(t, "slow")
	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), prog, NewToken())
	}()
	<-started

	assert.Equal(t, StateRunning, r.State())
	err := r.Run(context.Background(), prog, NewToken())
	require.ErrorIs(t, err, cerrors.ErrAlreadyRunning)
	assert.True(t, cerrors.IsInvalid(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, r.State())
}

func TestRunner_DeviceFailureDoesNotStopChain(t *testing.T) {
	commander := &testutil.MockCommander{}
	commander.On("SendCommand", mock.Anything, mock.MatchedBy(func(cmd device.Command) bool {
		return cmd.Name == program.ServoCommand && cmd.Args["angle"] == float64(45)
	})).Return(device.Result{}, cerrors.WrapTransient(cerrors.ErrDeviceFailure, "test", "SendCommand", "send")).Once()

	r, speaker := newTestRunner(t, WithCommander(commander))

	servo := program.NewServo()
	servo.SetAngle(45)
	prog := program.NewProgram()
	testutil.ChainOf(t, prog, append([]program.ActionBlock{program.NewStart(), servo},
		testutil.Speaks("after")...)...)

	require.NoError(t, r.Run(context.Background(), prog, NewToken()))
	assert.Equal(t, []string{"after"}, speaker.Spoken())
	commander.AssertExpectations(t)
}

func TestExecution_RunChainErrorHandling(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantAbort bool
		expected  []string
	}{
		{
			name:     "invalid error is logged and skipped",
			err:      cerrors.WrapInvalid(cerrors.ErrMissingValue, "test", "Run", "read"),
			expected: []string{"next"},
		},
		{
			name:     "transient error is logged and skipped",
			err:      cerrors.ErrDeviceFailure,
			expected: []string{"next"},
		},
		{
			name:      "fatal error aborts the chain",
			err:       cerrors.WrapFatal(cerrors.ErrUnreachable, "test", "Run", "dispatch"),
			wantAbort: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, speaker := newTestRunner(t)

			blocks := testutil.Speaks("wrapped", "next")
			prog := program.NewProgram()
			testutil.ChainOf(t, prog, blocks...)
			top := &failingBlock{ActionBlock: blocks[0], err: tt.err}

			e := &execution{runner: r, token: NewToken(), logger: slog.Default()}
			err := e.RunChain(context.Background(), top)

			if tt.wantAbort {
				var be *BlockError
				require.ErrorAs(t, err, &be)
				assert.Equal(t, blocks[0].ID(), be.BlockID)
				assert.Equal(t, "Speak", be.Kind)
				assert.True(t, cerrors.IsFatal(err))
				assert.ErrorIs(t, err, cerrors.ErrUnreachable)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, speaker.Spoken())
		})
	}
}

func TestRunner_FatalErrorFailsRun(t *testing.T) {
	r, _ := newTestRunner(t)

	blocks := testutil.Speaks("wrapped")
	prog := program.NewProgram()
	testutil.ChainOf(t, prog, blocks...)
	top := &failingBlock{ActionBlock: blocks[0], err: cerrors.WrapFatal(errors.New("boom"), "test", "Run", "x")}

	err := r.RunFrom(context.Background(), top, NewToken())
	var be *BlockError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, StateIdle, r.State())

	// a failed run leaves the runner reusable
	require.NoError(t, r.Run(context.Background(), testutil.LinearProgram(t, "again"), NewToken()))
}

func TestExecution_Sleep(t *testing.T) {
	e := &execution{}

	require.NoError(t, e.Sleep(context.Background(), 0))
	require.NoError(t, e.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, e.Sleep(ctx, 0), context.Canceled)
}

func TestRunner_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	r, _ := newTestRunner(t, WithMetrics(registry))
	require.NotNil(t, r.metrics)

	require.NoError(t, r.Run(context.Background(), testutil.LinearProgram(t, "x", "y"), NewToken()))

	assert.Equal(t, float64(1), promtestutil.ToFloat64(r.metrics.blocksTotal.WithLabelValues("Start")))
	assert.Equal(t, float64(2), promtestutil.ToFloat64(r.metrics.blocksTotal.WithLabelValues("Speak")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(r.metrics.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(0), promtestutil.ToFloat64(r.metrics.running))

	blocks := testutil.Speaks("wrapped")
	prog := program.NewProgram()
	testutil.ChainOf(t, prog, blocks...)
	top := &failingBlock{ActionBlock: blocks[0], err: cerrors.ErrDeviceFailure}
	require.NoError(t, r.RunFrom(context.Background(), top, nil))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(r.metrics.blockErrors.WithLabelValues("Speak", "transient")))

	// the same registry cannot host a second runner
	_, err := NewRunner(WithMetrics(registry))
	require.Error(t, err)
	assert.True(t, cerrors.IsFatal(err))
}
