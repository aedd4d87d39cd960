package statlog

import (
	"bytes"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestDisabledIntervalNeverLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	r := NewReporter(logger, 0)

	for i := 0; i < 1000; i++ {
		r.Observe(512)
	}
	assert.Empty(t, buf.String())
}

func TestFirstIntervalIsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	r := NewReporter(logger, 10*time.Millisecond)

	r.Observe(100) // primes lastReport, logs nothing
	assert.Empty(t, buf.String())
}
