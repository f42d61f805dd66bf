// Package device defines the collaborators that action blocks reach the
// outside world through: a Commander for actuator and status commands and
// a Speaker for speech. Transports for HTTP, NATS and WebSocket are
// provided; all of them are safe for concurrent use.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	cerrors "github.com/c360/blockflow/errors"
)

// Command is a device request. It encodes as {"command": ..., "args": {...}}.
type Command struct {
	Name string         `json:"command"`
	Args map[string]any `json:"args,omitempty"`
}

// Result is the device reply. Callers treat it as opaque success or failure.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Commander sends one command and waits for its result
type Commander interface {
	SendCommand(ctx context.Context, cmd Command) (Result, error)
}

// CommanderFunc adapts a function to Commander
type CommanderFunc func(ctx context.Context, cmd Command) (Result, error)

func (f CommanderFunc) SendCommand(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// NopCommander acknowledges every command without doing anything
type NopCommander struct{}

func (NopCommander) SendCommand(ctx context.Context, _ Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{OK: true}, nil
}

// Speaker turns text into speech and returns when playback finished
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// LogSpeaker only logs what would have been said
type LogSpeaker struct {
	logger *slog.Logger
}

func NewLogSpeaker(logger *slog.Logger) *LogSpeaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSpeaker{logger: logger}
}

func (s *LogSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("speak", "text", text)
	return nil
}

// SpeakCommand is the command name CommandSpeaker sends
const SpeakCommand = "speak"

// CommandSpeaker routes speech to the device as a "speak" command
type CommandSpeaker struct {
	commander Commander
}

func NewCommandSpeaker(c Commander) *CommandSpeaker {
	return &CommandSpeaker{commander: c}
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	res, err := s.commander.SendCommand(ctx, Command{
		Name: SpeakCommand,
		Args: map[string]any{"text": text},
	})
	if err != nil {
		return err
	}
	if !res.OK {
		return cerrors.WrapTransient(fmt.Errorf("%s: %w", res.Error, cerrors.ErrDeviceFailure),
			"CommandSpeaker", "Speak", "device speech")
	}
	return nil
}

// decodeResult parses a device reply body. An empty body counts as success.
func decodeResult(body []byte) (Result, error) {
	if len(body) == 0 {
		return Result{OK: true}, nil
	}
	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return Result{}, cerrors.WrapInvalid(fmt.Errorf("%v: %w", err, cerrors.ErrParsingFailed),
			"device", "decodeResult", "decode reply")
	}
	return res, nil
}
