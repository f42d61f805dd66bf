package program

import (
	"context"
	"encoding/json"
	"time"

	"github.com/c360/blockflow/device"
)

type actionBase struct {
	blockBase
	top    *Port
	bottom *Port
}

func (a *actionBase) initAction(self ActionBlock, kind Kind, height float64) {
	a.init(self, kind, Vec2{X: BlockWidth, Y: height})
	a.top = a.addPort(ControlIn, "top", Vec2{X: NotchX})
	a.bottom = a.addPort(ControlOut, "bottom", Vec2{X: NotchX, Y: height})
}

func (a *actionBase) TopPort() *Port          { return a.top }
func (a *actionBase) BottomPort() *Port       { return a.bottom }
func (a *actionBase) DependentPorts() []*Port { return []*Port{a.bottom} }

// leafFailed logs a collaborator failure. Only context cancellation is
// returned; everything else is swallowed so the chain advances.
func leafFailed(ctx context.Context, exec Executor, b Block, action string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	exec.Logger().Warn("action failed, continuing chain",
		"block_id", b.ID(),
		"kind", b.Kind().String(),
		"action", action,
		"error", err)
	return nil
}

// Start marks the root of a chain
type Start struct {
	actionBase
	noFields
}

func NewStart() *Start {
	s := &Start{}
	s.initAction(s, KindStart, ActionHeight)
	return s
}

func (s *Start) Run(context.Context, Executor) error { return nil }

func (s *Start) Clone() Block {
	c := NewStart()
	s.copyInto(&c.blockBase)
	return c
}

// Speak says a text through the Speaker collaborator. A value on the
// "text" input replaces the configured text.
type Speak struct {
	actionBase
	textIn *Port
	text   string
}

type speakFields struct {
	Text string `json:"text"`
}

func NewSpeak() *Speak {
	s := &Speak{text: "hello"}
	s.initAction(s, KindSpeak, ActionHeight)
	s.textIn = s.addPort(DataIn, "text", Vec2{X: BlockWidth, Y: ActionHeight / 2})
	return s
}

func (s *Speak) Text() string        { return s.text }
func (s *Speak) SetText(text string) { s.text = text }

func (s *Speak) Run(ctx context.Context, exec Executor) error {
	text := s.text
	if v := s.textIn.Value(); !v.IsAbsent() {
		text = v.String()
	}
	if err := exec.Speaker().Speak(ctx, text); err != nil {
		return leafFailed(ctx, exec, s, "speak", err)
	}
	return nil
}

func (s *Speak) Clone() Block {
	c := NewSpeak()
	s.copyInto(&c.blockBase)
	c.text = s.text
	return c
}

func (s *Speak) MarshalFields() (json.RawMessage, error) {
	return marshalFields(speakFields{Text: s.text})
}

func (s *Speak) UnmarshalFields(data json.RawMessage) error {
	f := speakFields{Text: s.text}
	if err := unmarshalFields(data, &f); err != nil {
		return err
	}
	s.text = f.Text
	return nil
}

// Sleep pauses the chain. A number on the "seconds" input replaces the
// configured duration.
type Sleep struct {
	actionBase
	secondsIn *Port
	seconds   float64
}

type sleepFields struct {
	Seconds float64 `json:"seconds"`
}

func NewSleep() *Sleep {
	s := &Sleep{seconds: 1}
	s.initAction(s, KindSleep, ActionHeight)
	s.secondsIn = s.addPort(DataIn, "seconds", Vec2{X: BlockWidth, Y: ActionHeight / 2})
	return s
}

func (s *Sleep) Seconds() float64     { return s.seconds }
func (s *Sleep) SetSeconds(v float64) { s.seconds = v }

// Duration is the pause the next Run will take
func (s *Sleep) Duration() time.Duration {
	sec := s.seconds
	if v, ok := s.secondsIn.Value().Float(); ok {
		sec = v
	}
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}

func (s *Sleep) Run(ctx context.Context, exec Executor) error {
	return exec.Sleep(ctx, s.Duration())
}

func (s *Sleep) Clone() Block {
	c := NewSleep()
	s.copyInto(&c.blockBase)
	c.seconds = s.seconds
	return c
}

func (s *Sleep) MarshalFields() (json.RawMessage, error) {
	return marshalFields(sleepFields{Seconds: s.seconds})
}

func (s *Sleep) UnmarshalFields(data json.RawMessage) error {
	f := sleepFields{Seconds: s.seconds}
	if err := unmarshalFields(data, &f); err != nil {
		return err
	}
	s.seconds = f.Seconds
	return nil
}

// Servo drives an actuator channel to an angle through the Commander
type Servo struct {
	actionBase
	angleIn *Port
	channel int
	angle   float64
}

type servoFields struct {
	Channel int     `json:"channel"`
	Angle   float64 `json:"angle"`
}

// ServoCommand is the device command name sent by Servo blocks
const ServoCommand = "servo"

func NewServo() *Servo {
	s := &Servo{angle: 90}
	s.initAction(s, KindServo, ActionHeight)
	s.angleIn = s.addPort(DataIn, "angle", Vec2{X: BlockWidth, Y: ActionHeight / 2})
	return s
}

func (s *Servo) Channel() int       { return s.channel }
func (s *Servo) SetChannel(ch int)  { s.channel = ch }
func (s *Servo) Angle() float64     { return s.angle }
func (s *Servo) SetAngle(a float64) { s.angle = a }
func (s *Servo) AnglePort() *Port   { return s.angleIn }

// Command returns the device command the next Run will send. A numeric
// value on the angle input overrides the configured angle.
func (s *Servo) Command() device.Command {
	angle := s.angle
	if v, ok := s.angleIn.Value().Float(); ok {
		angle = v
	}
	return device.Command{
		Name: ServoCommand,
		Args: map[string]any{
			"channel": s.channel,
			"angle":   angle,
		},
	}
}

func (s *Servo) Run(ctx context.Context, exec Executor) error {
	res, err := exec.Commander().SendCommand(ctx, s.Command())
	if err != nil {
		return leafFailed(ctx, exec, s, "servo command", err)
	}
	if !res.OK {
		exec.Logger().Warn("device rejected command",
			"block_id", s.id,
			"command", ServoCommand,
			"reason", res.Error)
	}
	return nil
}

func (s *Servo) Clone() Block {
	c := NewServo()
	s.copyInto(&c.blockBase)
	c.channel = s.channel
	c.angle = s.angle
	return c
}

func (s *Servo) MarshalFields() (json.RawMessage, error) {
	return marshalFields(servoFields{Channel: s.channel, Angle: s.angle})
}

func (s *Servo) UnmarshalFields(data json.RawMessage) error {
	f := servoFields{Channel: s.channel, Angle: s.angle}
	if err := unmarshalFields(data, &f); err != nil {
		return err
	}
	s.channel, s.angle = f.Channel, f.Angle
	return nil
}
