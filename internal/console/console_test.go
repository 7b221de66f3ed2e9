package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_TriggersOnlyOnTestCommand(t *testing.T) {
	calls := 0
	in := strings.NewReader("hello\n  TEST \n\nstatus\ntest\n")
	var out bytes.Buffer

	c := New(in, &out, func() error { calls++; return nil }, testLogger())
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 2, calls)
	assert.Contains(t, out.String(), "fetching latest email")
}

func TestRun_ReportsRejectedTrigger(t *testing.T) {
	in := strings.NewReader("test\n")
	var out bytes.Buffer

	c := New(in, &out, func() error { return errors.New("poller is idle") }, testLogger())
	require.NoError(t, c.Run(context.Background()))

	assert.Contains(t, out.String(), "fetch not started: poller is idle")
}

func TestRun_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(pr, io.Discard, func() error { return nil }, testLogger())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not stop")
	}
}
