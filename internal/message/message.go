package message

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/jhillyerd/enmime"
)

const (
	NoSubject      = "(No subject)"
	NoContent      = "(No content)"
	UnknownAddress = "Unknown"
)

// ErrEmptyMessage is returned when a fetched message has no bytes.
var ErrEmptyMessage = errors.New("empty message")

// Attachment is one file carried by a message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	Data        []byte
}

// IsImage reports whether the attachment can be shown inline in chat.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.ContentType), "image/")
}

// Message is the normalized form of one mailbox message.
type Message struct {
	ID          string
	Subject     string
	From        []string
	To          []string
	Date        time.Time // zero when the message carries no Date header
	Text        string
	HTML        string
	Attachments []Attachment
}

// Images returns the image attachments in message order.
func (m *Message) Images() []Attachment {
	var out []Attachment
	for _, a := range m.Attachments {
		if a.IsImage() {
			out = append(out, a)
		}
	}
	return out
}

// Parse converts raw RFC 5322 bytes into a Message. fallbackID is used when
// the message has no Message-ID header.
func Parse(raw []byte, fallbackID string) (*Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyMessage
	}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header := reader.Header
	reader.Close()

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	msg := &Message{
		ID:      fallbackID,
		Subject: NoSubject,
		Text:    strings.TrimSpace(env.Text),
		HTML:    env.HTML,
	}

	if id, err := header.MessageID(); err == nil && id != "" {
		msg.ID = "<" + id + ">"
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message has no Message-ID and no fallback id")
	}

	if subject, err := header.Subject(); err == nil && strings.TrimSpace(subject) != "" {
		msg.Subject = strings.TrimSpace(subject)
	}
	if date, err := header.Date(); err == nil {
		msg.Date = date
	}
	msg.From = addressList(header, "From")
	msg.To = addressList(header, "To")

	if msg.Text == "" {
		msg.Text = NoContent
	}

	for _, part := range env.Attachments {
		msg.Attachments = append(msg.Attachments, attachmentFrom(part))
	}
	for _, part := range env.Inlines {
		if part.FileName != "" {
			msg.Attachments = append(msg.Attachments, attachmentFrom(part))
		}
	}

	return msg, nil
}

// FormatAddresses joins display strings, or returns "Unknown" when there
// are none.
func FormatAddresses(list []string) string {
	if len(list) == 0 {
		return UnknownAddress
	}
	return strings.Join(list, ", ")
}

func addressList(h mail.Header, key string) []string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			out = append(out, a.Address)
		}
	}
	return out
}

func attachmentFrom(part *enmime.Part) Attachment {
	name := part.FileName
	if name == "" {
		name = "attachment"
	}
	return Attachment{
		Filename:    name,
		ContentType: part.ContentType,
		Size:        len(part.Content),
		Data:        part.Content,
	}
}
