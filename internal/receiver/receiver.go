package receiver

import "context"

// RawMessage is one fetched message before parsing.
type RawMessage struct {
	SeqNum  uint32
	UID     uint32
	Content []byte // raw RFC 5322 message bytes
}

// Dialer opens authenticated connections to a mail server.
type Dialer interface {
	Dial(ctx context.Context) (Mailbox, error)
}

// Mailbox is one live, logged-in connection.
type Mailbox interface {
	// SelectInbox opens the configured folder.
	SelectInbox() error

	// Search returns matching sequence numbers in ascending order; all
	// messages when unseenOnly is false.
	Search(unseenOnly bool) ([]uint32, error)

	// Fetch retrieves the full messages for seqNums. When markSeen is
	// false the server's \Seen flag is left untouched.
	Fetch(seqNums []uint32, markSeen bool) ([]RawMessage, error)

	// Logout ends the session politely and closes the connection.
	Logout() error

	// Close drops the connection immediately. Safe to call more than once
	// and from another goroutine to abort a pending command.
	Close() error
}
