// Package runlog tees interpreter log records to NATS so that an editor can
// show a program's output live.
//
// Handler wraps the process's slog.Handler. Every record still reaches the
// wrapped handler; records at or above the publish level are additionally
// encoded as a LogEntry and published on blockflow.logs.<program>.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// SubjectPrefix is the NATS subject prefix for run logs
const SubjectPrefix = "blockflow.logs"

// Level is the severity of a published entry
type Level string

// Levels
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

func levelOf(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// LogEntry is the JSON document published for each record
type LogEntry struct {
	Timestamp string         `json:"timestamp"` // RFC3339Nano, UTC
	Level     Level          `json:"level"`
	Program   string         `json:"program"`
	RunID     string         `json:"run_id,omitempty"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Publisher is satisfied by *natsclient.Client
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subject returns the subject logs of program are published on. Characters
// that would split or wildcard the subject are replaced.
func Subject(program string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, program)
	if clean == "" {
		clean = "_"
	}
	return SubjectPrefix + "." + clean
}

// Option configures a Handler
type Option func(*Handler)

// WithLevel sets the minimum level that is published. Default is Info.
func WithLevel(l slog.Leveler) Option {
	return func(h *Handler) { h.level = l }
}

type shared struct {
	pub       Publisher
	subject   string
	program   string
	published atomic.Uint64
	dropped   atomic.Uint64
}

// Handler is an slog.Handler that forwards to another handler and publishes
// to NATS
type Handler struct {
	next   slog.Handler
	level  slog.Leveler
	shared *shared

	attrs  map[string]any
	runID  string
	prefix string // open groups joined with "."
}

// NewHandler wraps next. A nil pub disables publishing.
func NewHandler(next slog.Handler, pub Publisher, program string, opts ...Option) *Handler {
	h := &Handler{
		next:  next,
		level: slog.LevelInfo,
		shared: &shared{
			pub:     pub,
			subject: Subject(program),
			program: program,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subject returns the subject this handler publishes on
func (h *Handler) Subject() string { return h.shared.subject }

// Published returns the number of entries published so far
func (h *Handler) Published() uint64 { return h.shared.published.Load() }

// Dropped returns the number of entries that failed to publish
func (h *Handler) Dropped() uint64 { return h.shared.dropped.Load() }

func (h *Handler) publishes(level slog.Level) bool {
	return h.shared.pub != nil && level >= h.level.Level()
}

// Enabled implements slog.Handler
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || h.publishes(level)
}

// Handle implements slog.Handler. Publishing failures are counted and never
// returned, so a broken NATS link cannot break local logging.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if h.publishes(r.Level) && ctx.Err() == nil {
		h.publish(ctx, r)
	}
	return err
}

func (h *Handler) publish(ctx context.Context, r slog.Record) {
	entry := LogEntry{
		Timestamp: r.Time.UTC().Format(time.RFC3339Nano),
		Level:     levelOf(r.Level),
		Program:   h.shared.program,
		RunID:     h.runID,
		Message:   r.Message,
	}
	if r.Time.IsZero() {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == "error" {
			entry.Error = fmt.Sprint(a.Value.Resolve().Any())
			return true
		}
		if h.prefix == "" && a.Key == "run_id" {
			entry.RunID = a.Value.Resolve().String()
			return true
		}
		flatten(attrs, h.prefix, a)
		return true
	})
	if len(attrs) > 0 {
		entry.Attrs = attrs
	}

	data, err := json.Marshal(entry)
	if err != nil {
		h.shared.dropped.Add(1)
		return
	}
	if err := h.shared.pub.Publish(ctx, h.shared.subject, data); err != nil {
		h.shared.dropped.Add(1)
		return
	}
	h.shared.published.Add(1)
}

// WithAttrs implements slog.Handler
func (h *Handler) WithAttrs(as []slog.Attr) slog.Handler {
	if len(as) == 0 {
		return h
	}
	c := h.clone()
	c.next = h.next.WithAttrs(as)
	for _, a := range as {
		if h.prefix == "" && a.Key == "run_id" {
			c.runID = a.Value.Resolve().String()
			continue
		}
		flatten(c.attrs, h.prefix, a)
	}
	return c
}

// WithGroup implements slog.Handler
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.next = h.next.WithGroup(name)
	c.prefix = join(h.prefix, name)
	return c
}

func (h *Handler) clone() *Handler {
	c := *h
	c.attrs = make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		c.attrs[k] = v
	}
	return &c
}

// flatten stores a under prefix, expanding groups into dotted keys
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = join(prefix, a.Key)
		}
		for _, ga := range v.Group() {
			flatten(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}

	key := join(prefix, a.Key)
	switch v.Kind() {
	case slog.KindDuration:
		dst[key] = v.Duration().String()
	case slog.KindTime:
		dst[key] = v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[key] = err.Error()
			return
		}
		dst[key] = v.Any()
	default:
		dst[key] = v.Any()
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
