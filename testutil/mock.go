package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/c360/blockflow/device"
)

// RecordingSpeaker records every text it is asked to speak.
// OnSpeak, when set, runs after the text was recorded and its error is returned.
type RecordingSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	OnSpeak func(ctx context.Context, text string) error
}

// NewRecordingSpeaker creates an empty RecordingSpeaker.
func NewRecordingSpeaker() *RecordingSpeaker {
	return &RecordingSpeaker{}
}

// Speak implements device.Speaker.
func (s *RecordingSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	hook := s.OnSpeak
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, text)
	}
	return nil
}

// Spoken returns a copy of the recorded texts in call order.
func (s *RecordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.spoken)
}

// MockCommander implements device.Commander with testify expectations.
type MockCommander struct {
	mock.Mock
}

// SendCommand records the call and returns the configured result.
func (m *MockCommander) SendCommand(ctx context.Context, cmd device.Command) (device.Result, error) {
	args := m.Called(ctx, cmd)
	if res, ok := args.Get(0).(device.Result); ok {
		return res, args.Error(1)
	}
	return device.Result{}, args.Error(1)
}

// Common test errors
var (
	ErrMockFailed     = errors.New("mock operation failed")
	ErrMockTimeout    = errors.New("mock operation timed out")
	ErrMockConnection = errors.New("mock connection error")
)
