package deploy

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestStepLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	orig := log.Logger
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = orig })

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l := &StepLogger{
		Code:  "deploy",
		Start: now,
		now:   func() time.Time { return now },
	}

	l.Step("sync migrations")
	now = now.Add(1500 * time.Millisecond)
	l.Done()
	l.Done()

	out := buf.String()
	assert.Contains(t, out, `[deploy][0s] sync migrations`)
	assert.Contains(t, out, `[deploy][1.5s] sync migrations done in 1.5s`)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}
