// Package poller owns the mail-server connection lifecycle: one connection
// at a time, a fixed-delay poll schedule, reconnect after failures, and
// duplicate suppression for messages already reported as new.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracyhatemice/inboxcord/internal/dedup"
	"github.com/tracyhatemice/inboxcord/internal/message"
	"github.com/tracyhatemice/inboxcord/internal/receiver"
)

// DefaultReconnectDelay is the wait before retrying after a failed poll.
const DefaultReconnectDelay = 30 * time.Second

var (
	// ErrNotRunning is returned by TriggerOnDemandFetch while stopped.
	ErrNotRunning = errors.New("poller is idle")
	// ErrConnectionActive is returned when a cycle is already talking to
	// the server. Requests are rejected, never queued.
	ErrConnectionActive = errors.New("connection already active")
)

// State is the controller's position in the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateInboxOpen
	StateScanning
	StateFetching
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateInboxOpen:
		return "inbox-open"
	case StateScanning:
		return "scanning"
	case StateFetching:
		return "fetching"
	case StateWaiting:
		return "waiting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode selects what a cycle scans for.
type Mode int

const (
	// ModePoll scans unseen messages and marks them seen.
	ModePoll Mode = iota
	// ModeOnDemand reads the most recent message without marking it.
	ModeOnDemand
)

func (m Mode) String() string {
	if m == ModeOnDemand {
		return "on-demand"
	}
	return "poll"
}

// Handler receives the controller's signals. Calls are made from cycle
// goroutines one at a time; implementations must not call Stop from
// inside a callback.
type Handler interface {
	// NewMessage is called once per message ID surfaced by a poll cycle.
	NewMessage(msg *message.Message)
	// LatestMessage is called with the result of an on-demand cycle.
	LatestMessage(msg *message.Message)
	// NoMessages is called when an on-demand cycle finds an empty mailbox.
	NoMessages()
	// Error reports a transport failure of a cycle.
	Error(mode Mode, err error)
}

// Options configures a Controller.
type Options struct {
	Interval       time.Duration
	ReconnectDelay time.Duration
	// FallbackID builds the message ID used when a message has no
	// Message-ID header.
	FallbackID func(raw receiver.RawMessage) string
}

// session is one attempt to talk to the server.
type session struct {
	id     string
	mode   Mode
	epoch  uint64
	cancel context.CancelFunc

	mu      sync.Mutex
	mailbox receiver.Mailbox
	closed  bool
}

// attach stores mb unless the session was already torn down, in which
// case it reports false and the caller must close mb.
func (s *session) attach(mb receiver.Mailbox) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.mailbox = mb
	return true
}

// logout ends the server session politely. The mailbox stays attached so a
// concurrent teardown can still force it closed.
func (s *session) logout() error {
	s.mu.Lock()
	mb := s.mailbox
	closed := s.closed
	s.mu.Unlock()

	if closed || mb == nil {
		return nil
	}
	return mb.Logout()
}

// teardown force-closes the mailbox. Safe to call more than once.
func (s *session) teardown() error {
	s.cancel()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	mb := s.mailbox
	s.mailbox = nil
	s.mu.Unlock()

	if mb == nil {
		return nil
	}
	return mb.Close()
}

// Controller drives poll and on-demand cycles against one mailbox.
type Controller struct {
	dialer     receiver.Dialer
	handler    Handler
	tracker    *dedup.Tracker
	logger     *slog.Logger
	interval   time.Duration
	retryDelay time.Duration
	fallbackID func(receiver.RawMessage) string

	mu      sync.Mutex
	running bool
	epoch   uint64
	state   State
	active  *session
	timer   *time.Timer

	// emitMu serializes handler signals against Stop.
	emitMu sync.Mutex
	cycles sync.WaitGroup
}

// New creates a stopped Controller.
func New(dialer receiver.Dialer, handler Handler, tracker *dedup.Tracker, opts Options, logger *slog.Logger) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.FallbackID == nil {
		opts.FallbackID = func(raw receiver.RawMessage) string {
			return fmt.Sprintf("imap-uid-%d", raw.UID)
		}
	}
	return &Controller{
		dialer:     dialer,
		handler:    handler,
		tracker:    tracker,
		logger:     logger,
		interval:   opts.Interval,
		retryDelay: opts.ReconnectDelay,
		fallbackID: opts.FallbackID,
	}
}

// Start begins polling. Calling Start on a running controller only logs a
// warning.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("poller already running")
		return
	}
	c.running = true
	c.epoch++
	epoch := c.epoch
	// The first poll claims the slot before anyone else can see the
	// controller running.
	err := c.beginLocked(ModePoll)
	c.mu.Unlock()

	c.logger.Info("poller started", "interval", c.interval)
	if err != nil {
		c.logger.Warn("initial poll not started", "error", err)
		c.arm(epoch, c.retryDelay)
	}
}

// Stop halts polling, drops any open connection and forgets which messages
// were reported. No handler signal is delivered after Stop returns.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.epoch++
	c.state = StateIdle
	c.cancelTimerLocked()
	s := c.active
	c.active = nil
	c.mu.Unlock()

	if s != nil {
		if err := s.teardown(); err != nil {
			c.logger.Debug("force close failed", "cycle", s.id, "error", err)
		}
	}

	// Wait out a signal already in flight, then forget everything.
	c.emitMu.Lock()
	c.tracker.Reset()
	c.emitMu.Unlock()

	c.logger.Info("poller stopped")
}

// TriggerOnDemandFetch starts a cycle that reads the newest message in
// the mailbox without marking it seen.
func (c *Controller) TriggerOnDemandFetch() error {
	if err := c.begin(ModeOnDemand); err != nil {
		c.logger.Warn("on-demand fetch rejected", "error", err)
		return err
	}
	return nil
}

// Running reports whether the controller has been started.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until cycle goroutines have returned.
func (c *Controller) Wait() {
	c.cycles.Wait()
}

// begin claims the active slot and launches a cycle.
func (c *Controller) begin(mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginLocked(mode)
}

func (c *Controller) beginLocked(mode Mode) error {
	if !c.running {
		return ErrNotRunning
	}
	if c.active != nil {
		return fmt.Errorf("%w: %s cycle %s", ErrConnectionActive, c.active.mode, c.active.id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		mode:   mode,
		epoch:  c.epoch,
		cancel: cancel,
	}
	c.active = s
	c.state = StateConnecting
	if mode == ModePoll {
		c.cancelTimerLocked()
	}

	c.cycles.Add(1)
	go func() {
		defer c.cycles.Done()
		c.run(ctx, s)
	}()
	return nil
}

func (c *Controller) run(ctx context.Context, s *session) {
	log := c.logger.With("cycle", s.id, "mode", s.mode.String())
	log.Debug("cycle started")

	mb, err := c.dialer.Dial(ctx)
	if err != nil {
		c.fail(s, fmt.Errorf("connect: %w", err))
		return
	}
	if !s.attach(mb) {
		_ = mb.Close()
		return
	}

	if !c.advance(s, StateInboxOpen) {
		return
	}
	if err := mb.SelectInbox(); err != nil {
		c.fail(s, err)
		return
	}

	if !c.advance(s, StateScanning) {
		return
	}
	seqNums, err := mb.Search(s.mode == ModePoll)
	if err != nil {
		c.fail(s, err)
		return
	}

	if len(seqNums) == 0 {
		log.Debug("no messages found")
		c.finish(s)
		if s.mode == ModeOnDemand {
			c.emit(s, c.handler.NoMessages)
		}
		return
	}

	markSeen := true
	if s.mode == ModeOnDemand {
		seqNums = []uint32{slices.Max(seqNums)}
		markSeen = false
	}

	if !c.advance(s, StateFetching) {
		return
	}
	raws, err := mb.Fetch(seqNums, markSeen)
	if err != nil {
		c.fail(s, err)
		return
	}
	log.Info("fetched messages", "count", len(raws))

	for _, raw := range raws {
		msg, err := message.Parse(raw.Content, c.fallbackID(raw))
		if err != nil {
			log.Warn("skipping unparsable message", "seq", raw.SeqNum, "error", err)
			continue
		}

		if s.mode == ModeOnDemand {
			c.emit(s, func() { c.handler.LatestMessage(msg) })
			continue
		}
		c.emit(s, func() {
			if c.tracker.MarkSeen(msg.ID) {
				c.handler.NewMessage(msg)
			} else {
				log.Debug("already reported", "msg_id", msg.ID)
			}
		})
	}

	c.finish(s)
}

// advance moves to the next state if s is still the active session.
func (c *Controller) advance(s *session, next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != s {
		return false
	}
	c.state = next
	return true
}

// release clears the active slot if s holds it.
func (c *Controller) release(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != s {
		return false
	}
	c.active = nil
	c.state = StateIdle
	return true
}

// finish logs out of a completed cycle and, for polls, schedules the next.
// The slot is held during logout so Stop can still force the connection
// closed.
func (c *Controller) finish(s *session) {
	if err := s.logout(); err != nil {
		c.logger.Debug("logout failed", "cycle", s.id, "error", err)
	}
	if !c.release(s) {
		return
	}
	_ = s.teardown()
	if s.mode == ModePoll {
		c.arm(s.epoch, c.interval)
	} else {
		c.restoreWaiting()
	}
}

// fail tears down a failed cycle and reports err.
func (c *Controller) fail(s *session, err error) {
	if !c.release(s) {
		return
	}
	_ = s.teardown()

	c.emit(s, func() { c.handler.Error(s.mode, err) })

	if s.mode == ModePoll {
		c.logger.Error("poll failed, reconnect scheduled", "cycle", s.id, "delay", c.retryDelay, "error", err)
		c.arm(s.epoch, c.retryDelay)
	} else {
		c.logger.Error("on-demand fetch failed", "cycle", s.id, "error", err)
		c.restoreWaiting()
	}
}

// emit delivers a signal unless the controller was stopped since s began.
func (c *Controller) emit(s *session, fn func()) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	current := c.running && c.epoch == s.epoch
	c.mu.Unlock()
	if !current {
		return
	}
	fn()
}

// arm schedules the next poll cycle after d, replacing any pending timer.
// A poll cycle that became active in the meantime owns the schedule, so
// nothing is armed in that case.
func (c *Controller) arm(epoch uint64, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.epoch != epoch {
		return
	}
	if c.active != nil && c.active.mode == ModePoll {
		return
	}
	c.cancelTimerLocked()
	if c.active == nil {
		c.state = StateWaiting
	}
	c.timer = time.AfterFunc(d, func() { c.fire(epoch) })
}

// restoreWaiting returns to the waiting state after an on-demand cycle if
// a poll timer is still pending.
func (c *Controller) restoreWaiting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running && c.active == nil && c.timer != nil {
		c.state = StateWaiting
	}
}

func (c *Controller) fire(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.epoch != epoch {
		return
	}
	c.timer = nil

	if busy := c.active; busy != nil {
		if busy.mode == ModeOnDemand {
			// On-demand cycles never reschedule polling, so keep the
			// schedule alive here.
			c.logger.Debug("poll deferred by on-demand fetch", "delay", c.retryDelay)
			c.timer = time.AfterFunc(c.retryDelay, func() { c.fire(epoch) })
		}
		return
	}
	if err := c.beginLocked(ModePoll); err != nil {
		c.logger.Debug("scheduled poll skipped", "error", err)
	}
}

func (c *Controller) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
