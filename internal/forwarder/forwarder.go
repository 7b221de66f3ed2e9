package forwarder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/tracyhatemice/inboxcord/internal/message"
	"github.com/tracyhatemice/inboxcord/internal/poller"
)

const publishTimeout = time.Minute

// Renderer produces a snapshot image of a message.
type Renderer interface {
	Render(ctx context.Context, msg *message.Message) ([]byte, error)
}

// Publisher delivers a message to chat.
type Publisher interface {
	Accepts(msg *message.Message) bool
	Send(ctx context.Context, msg *message.Message, snapshot []byte) error
}

// Stats counts what happened to surfaced messages.
type Stats struct {
	Forwarded int64
	Skipped   int64
	Failed    int64
}

// Forwarder receives poller signals and republishes each message, with a
// snapshot when a renderer is configured. Work runs on its own goroutines
// so the poller is never blocked by chat or browser latency.
type Forwarder struct {
	renderer  Renderer // nil disables snapshots
	publisher Publisher
	logger    *slog.Logger

	wg        sync.WaitGroup
	forwarded atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

var _ poller.Handler = (*Forwarder)(nil)

// New creates a Forwarder. renderer may be nil.
func New(renderer Renderer, publisher Publisher, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		renderer:  renderer,
		publisher: publisher,
		logger:    logger,
	}
}

// NewMessage forwards a message surfaced by a poll cycle.
func (f *Forwarder) NewMessage(msg *message.Message) {
	f.logger.Info("new email", "msg_id", msg.ID, "subject", msg.Subject, "from", message.FormatAddresses(msg.From))
	f.dispatch(msg)
}

// LatestMessage forwards the result of an on-demand fetch.
func (f *Forwarder) LatestMessage(msg *message.Message) {
	f.logger.Info("latest email", "msg_id", msg.ID, "subject", msg.Subject, "from", message.FormatAddresses(msg.From))
	f.dispatch(msg)
}

// NoMessages reports an empty mailbox.
func (f *Forwarder) NoMessages() {
	f.logger.Info("no emails in mailbox")
}

// Error reports a failed cycle.
func (f *Forwarder) Error(mode poller.Mode, err error) {
	f.logger.Error("mail cycle failed", "mode", mode.String(), "error", err)
}

// Wait blocks until in-flight forwards finish.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

// Stats returns a snapshot of the counters.
func (f *Forwarder) Stats() Stats {
	return Stats{
		Forwarded: f.forwarded.Load(),
		Skipped:   f.skipped.Load(),
		Failed:    f.failed.Load(),
	}
}

func (f *Forwarder) dispatch(msg *message.Message) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.forward(msg)
	}()
}

func (f *Forwarder) forward(msg *message.Message) {
	if !f.publisher.Accepts(msg) {
		f.skipped.Inc()
		f.logger.Info("filtered out", "msg_id", msg.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var snapshot []byte
	if f.renderer != nil {
		png, err := f.renderer.Render(ctx, msg)
		if err != nil {
			f.logger.Warn("render failed, sending without snapshot", "msg_id", msg.ID, "error", err)
		} else {
			snapshot = png
		}
	}

	if err := f.publisher.Send(ctx, msg, snapshot); err != nil {
		f.failed.Inc()
		f.logger.Error("publish failed", "msg_id", msg.ID, "error", err)
		return
	}

	f.forwarded.Inc()
}
