package receiver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const dialTimeout = 30 * time.Second

// IMAPDialer connects to an IMAP/IMAPS server.
type IMAPDialer struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	folder   string
	logger   *slog.Logger
}

// NewIMAP creates a new IMAP dialer.
func NewIMAP(host string, port int, username, password string, useTLS bool, folder string, logger *slog.Logger) *IMAPDialer {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPDialer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		folder:   folder,
		logger:   logger,
	}
}

// Dial connects and logs in. Cancelling ctx aborts the dial only.
func (d *IMAPDialer) Dial(ctx context.Context) (Mailbox, error) {
	addr := net.JoinHostPort(d.host, fmt.Sprintf("%d", d.port))

	netDialer := &net.Dialer{Timeout: dialTimeout}
	var conn net.Conn
	var err error
	if d.useTLS {
		tlsDialer := &tls.Dialer{
			NetDialer: netDialer,
			Config:    &tls.Config{ServerName: d.host},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}

	client := imapclient.New(conn, nil)

	if err := client.Login(d.username, d.password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login %s: %w", d.username, err)
	}

	d.logger.Debug("imap connected", "addr", addr, "user", d.username)
	return &imapMailbox{
		client: client,
		folder: d.folder,
		logger: d.logger,
	}, nil
}

type imapMailbox struct {
	client    *imapclient.Client
	folder    string
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func (m *imapMailbox) SelectInbox() error {
	if _, err := m.client.Select(m.folder, nil).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", m.folder, err)
	}
	return nil
}

func (m *imapMailbox) Search(unseenOnly bool) ([]uint32, error) {
	criteria := &imap.SearchCriteria{}
	if unseenOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}

	searchData, err := m.client.Search(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}

	seqNums := searchData.AllSeqNums()
	slices.Sort(seqNums)
	return seqNums, nil
}

func (m *imapMailbox) Fetch(seqNums []uint32, markSeen bool) ([]RawMessage, error) {
	if len(seqNums) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: !markSeen}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	buffers, err := m.client.Fetch(imap.SeqSetNum(seqNums...), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	msgs := make([]RawMessage, 0, len(buffers))
	for _, buf := range buffers {
		content := buf.FindBodySection(bodySection)
		if len(content) == 0 {
			m.logger.Warn("empty body in fetch response", "seq", buf.SeqNum)
		}
		msgs = append(msgs, RawMessage{
			SeqNum:  buf.SeqNum,
			UID:     uint32(buf.UID),
			Content: content,
		})
	}
	return msgs, nil
}

func (m *imapMailbox) Logout() error {
	err := m.client.Logout().Wait()
	if cerr := m.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("imap logout: %w", err)
	}
	return nil
}

func (m *imapMailbox) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.client.Close()
	})
	return m.closeErr
}
