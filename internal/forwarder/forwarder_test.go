package forwarder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/inboxcord/internal/message"
	"github.com/tracyhatemice/inboxcord/internal/poller"
)

type fakeRenderer struct {
	png []byte
	err error
}

func (r *fakeRenderer) Render(context.Context, *message.Message) ([]byte, error) {
	return r.png, r.err
}

type sentMessage struct {
	msg      *message.Message
	snapshot []byte
}

type fakePublisher struct {
	mu      sync.Mutex
	keyword string
	sent    []sentMessage
	err     error
}

func (p *fakePublisher) Accepts(msg *message.Message) bool {
	return strings.Contains(strings.ToLower(msg.Subject), p.keyword)
}

func (p *fakePublisher) Send(_ context.Context, msg *message.Message, snapshot []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentMessage{msg: msg, snapshot: snapshot})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMessage_RendersAndPublishes(t *testing.T) {
	pub := &fakePublisher{keyword: "flight"}
	f := New(&fakeRenderer{png: []byte("png")}, pub, testLogger())

	f.NewMessage(&message.Message{ID: "1", Subject: "Flight"})
	f.Wait()

	require.Len(t, pub.sent, 1)
	assert.Equal(t, []byte("png"), pub.sent[0].snapshot)
	assert.Equal(t, Stats{Forwarded: 1}, f.Stats())
}

func TestLatestMessage_RenderFailureOmitsSnapshot(t *testing.T) {
	pub := &fakePublisher{keyword: "flight"}
	f := New(&fakeRenderer{err: errors.New("context deadline exceeded")}, pub, testLogger())

	f.LatestMessage(&message.Message{ID: "1", Subject: "flight"})
	f.Wait()

	require.Len(t, pub.sent, 1)
	assert.Nil(t, pub.sent[0].snapshot)
}

func TestForward_NoRenderer(t *testing.T) {
	pub := &fakePublisher{keyword: "flight"}
	f := New(nil, pub, testLogger())

	f.NewMessage(&message.Message{ID: "1", Subject: "flight"})
	f.Wait()

	require.Len(t, pub.sent, 1)
	assert.Nil(t, pub.sent[0].snapshot)
}

func TestForward_FilteredMessageIsSkipped(t *testing.T) {
	pub := &fakePublisher{keyword: "flight"}
	f := New(&fakeRenderer{png: []byte("png")}, pub, testLogger())

	f.NewMessage(&message.Message{ID: "1", Subject: "newsletter"})
	f.Wait()

	assert.Empty(t, pub.sent)
	assert.Equal(t, Stats{Skipped: 1}, f.Stats())
}

func TestForward_PublishErrorIsDropped(t *testing.T) {
	pub := &fakePublisher{keyword: "flight", err: errors.New("rate limited")}
	f := New(nil, pub, testLogger())

	f.NewMessage(&message.Message{ID: "1", Subject: "flight"})
	f.NewMessage(&message.Message{ID: "2", Subject: "flight"})
	f.Wait()

	assert.Equal(t, Stats{Failed: 2}, f.Stats())
}

func TestSignalsWithoutMessages(t *testing.T) {
	f := New(nil, &fakePublisher{}, testLogger())

	assert.NotPanics(t, func() {
		f.NoMessages()
		f.Error(poller.ModePoll, errors.New("imap connect: refused"))
	})
	assert.Equal(t, Stats{}, f.Stats())
}
