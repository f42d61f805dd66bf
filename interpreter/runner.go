// Package interpreter executes the control chains of a program.
//
// A Runner walks every chain root in program order and calls Run on each
// action block. Cancellation is cooperative: a Token is checked after each
// block and at loop iteration boundaries, so the block that is executing
// when Stop is called always completes. Context cancellation is a harder
// abort that interrupts sleeps and device commands.
//
// Errors returned by a block are logged and counted. Only fatal-class
// errors (see package errors) and context cancellation end a run early.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/blockflow/device"
	cerrors "github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/metric"
	"github.com/c360/blockflow/program"
)

// DefaultLoopDelay is the idle time between two iterations of a Loop block
const DefaultLoopDelay = 100 * time.Millisecond

// Runner executes programs. A Runner executes at most one program at a time.
type Runner struct {
	speaker   device.Speaker
	commander device.Commander
	logger    *slog.Logger
	loopDelay time.Duration
	registry  *metric.MetricsRegistry
	metrics   *runnerMetrics

	mu    sync.Mutex
	state State
	token *Token
}

// Option configures a Runner
type Option func(*Runner)

func WithSpeaker(s device.Speaker) Option {
	return func(r *Runner) { r.speaker = s }
}

func WithCommander(c device.Commander) Option {
	return func(r *Runner) { r.commander = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithLoopDelay sets the pause between Loop iterations. Negative values are treated as zero.
func WithLoopDelay(d time.Duration) Option {
	return func(r *Runner) { r.loopDelay = max(d, 0) }
}

// WithMetrics registers interpreter metrics with registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Runner) { r.registry = registry }
}

// NewRunner creates a Runner. Without options speech is logged and device
// commands are acknowledged without effect.
func NewRunner(opts ...Option) (*Runner, error) {
	r := &Runner{
		loopDelay: DefaultLoopDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.speaker == nil {
		r.speaker = device.NewLogSpeaker(r.logger)
	}
	if r.commander == nil {
		r.commander = device.NopCommander{}
	}

	m, err := newRunnerMetrics(r.registry)
	if err != nil {
		return nil, cerrors.WrapFatal(err, "Runner", "NewRunner", "register metrics")
	}
	r.metrics = m
	return r, nil
}

// State returns the current lifecycle state
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stop stops the token of the active run, if any
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning {
		r.token.Stop()
	}
}

// TopActions returns the chain roots of prog in the order Run executes them
func TopActions(prog *program.Program) []program.ActionBlock {
	return prog.TopActions()
}

// Run executes every chain of prog sequentially. Once token is stopped no
// further chain is started. A nil token gives a run that only ends through
// ctx or by running out of blocks.
func (r *Runner) Run(ctx context.Context, prog *program.Program, token *Token) error {
	return r.run(ctx, token, TopActions(prog))
}

// RunFrom executes the single chain starting at top
func (r *Runner) RunFrom(ctx context.Context, top program.ActionBlock, token *Token) error {
	if top == nil {
		return nil
	}
	return r.run(ctx, token, []program.ActionBlock{top})
}

func (r *Runner) begin(token *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning {
		return cerrors.WrapInvalid(cerrors.ErrAlreadyRunning, "Runner", "Run", "start run")
	}
	r.state = StateRunning
	r.token = token
	return nil
}

func (r *Runner) finish(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.token = nil
}

func (r *Runner) run(ctx context.Context, token *Token, tops []program.ActionBlock) error {
	if token == nil {
		token = NewToken()
	}
	if err := r.begin(token); err != nil {
		return err
	}

	e := &execution{
		runner: r,
		token:  token,
		logger: r.logger.With("run_id", uuid.NewString()),
	}
	e.logger.Info("run started", "chains", len(tops))
	r.metrics.runStarted()
	start := time.Now()

	var err error
	for _, top := range tops {
		if token.Stopped() {
			break
		}
		if err = e.RunChain(ctx, top); err != nil {
			break
		}
	}

	final, status := StateIdle, "completed"
	switch {
	case token.Stopped() || ctx.Err() != nil:
		final, status = StateCancelled, "cancelled"
	case err != nil:
		status = "failed"
	}
	elapsed := time.Since(start)
	r.metrics.runFinished(status, elapsed)
	r.finish(final)

	if err != nil && status == "failed" {
		e.logger.Error("run failed", "error", err, "duration", elapsed)
	} else {
		e.logger.Info("run finished", "status", status, "duration", elapsed)
	}
	return err
}

// BlockError is returned by a run that a block aborted
type BlockError struct {
	BlockID string
	Kind    string
	Err     error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %s (%s): %v", e.BlockID, e.Kind, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// execution is the per-run view of a Runner that action blocks execute against
type execution struct {
	runner *Runner
	token  *Token
	logger *slog.Logger
}

var _ program.Executor = (*execution)(nil)

// RunChain runs top and its successors in order. It returns early when the
// token is stopped (nil error), the context is done, or a block returns a
// fatal error.
func (e *execution) RunChain(ctx context.Context, top program.ActionBlock) error {
	for b := range program.Chain(top) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.runBlock(ctx, b); err != nil {
			return err
		}
		if e.token.Stopped() {
			return nil
		}
	}
	return nil
}

func (e *execution) runBlock(ctx context.Context, b program.ActionBlock) error {
	kind := b.Kind().String()
	start := time.Now()
	err := b.Run(ctx, e)
	e.runner.metrics.recordBlock(kind, time.Since(start))
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// already reported by the nested chain that produced it
	var be *BlockError
	if errors.As(err, &be) {
		return err
	}
	class := cerrors.Classify(err)
	e.runner.metrics.recordError(kind, class.String())
	if class == cerrors.ErrorFatal {
		e.logger.Error("block failed, aborting run",
			"block_id", b.ID(), "kind", kind, "error", err)
		return &BlockError{BlockID: b.ID(), Kind: kind, Err: err}
	}
	e.logger.Warn("block failed, continuing chain",
		"block_id", b.ID(), "kind", kind, "class", class.String(), "error", err)
	return nil
}

func (e *execution) Stopped() bool { return e.token.Stopped() }

// Sleep waits for d or until ctx is done. A stopped token does not cut a
// sleep short.
func (e *execution) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *execution) Speaker() device.Speaker     { return e.runner.speaker }
func (e *execution) Commander() device.Commander { return e.runner.commander }
func (e *execution) Logger() *slog.Logger        { return e.logger }
func (e *execution) LoopDelay() time.Duration    { return e.runner.loopDelay }
