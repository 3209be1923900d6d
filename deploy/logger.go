package deploy

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StepLogger logs the steps of a run, prefixed with the run code and the
// time elapsed since the run started
type StepLogger struct {
	Code  string
	Start time.Time

	step      string
	stepStart time.Time
	now       func() time.Time
}

// NewStepLogger initialize a new step logger starting now
func NewStepLogger(code string) (l *StepLogger) {
	l = &StepLogger{
		Code: code,
		now:  time.Now,
	}
	l.Start = l.now()
	return l
}

// Step marks the start of a new step
func (l *StepLogger) Step(name string) {
	l.step = name
	l.stepStart = l.now()
	l.Info("%s", name)
}

// Done logs how long the current step took
func (l *StepLogger) Done() {
	if l.step == "" {
		return
	}
	l.Info("%s done in %s", l.step, l.now().Sub(l.stepStart).Round(time.Millisecond))
	l.step = ""
}

// Info helper to use zerolog info
func (l *StepLogger) Info(msg string, args ...interface{}) {
	l.Log(log.Info(), msg, args...)
}

// Warn helper to use zerolog warn
func (l *StepLogger) Warn(msg string, args ...interface{}) {
	l.Log(log.Warn(), msg, args...)
}

// Error helper to use zerolog error
func (l *StepLogger) Error(err error, msg string, args ...interface{}) {
	l.Log(log.Error().Err(err), msg, args...)
}

// Log writes to the logger
func (l *StepLogger) Log(ze *zerolog.Event, msg string, args ...interface{}) {
	ze.Msgf(l.prefix()+msg, args...)
}

// prefix returns [code][elapsed]
func (l *StepLogger) prefix() string {
	sb := strings.Builder{}

	_ = sb.WriteByte('[')
	_, _ = sb.WriteString(l.Code)
	_ = sb.WriteByte(']')

	_ = sb.WriteByte('[')
	_, _ = sb.WriteString(l.now().Sub(l.Start).Round(time.Millisecond).String())
	_, _ = sb.WriteString("] ")

	return sb.String()
}
