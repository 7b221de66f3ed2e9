package sender

import (
	"strings"

	"github.com/tracyhatemice/inboxcord/internal/message"
)

// Matches reports whether keyword occurs, ignoring case, in the sender,
// recipients, subject, text or HTML body of msg.
func Matches(msg *message.Message, keyword string) bool {
	needle := strings.ToLower(keyword)
	fields := []string{
		strings.Join(msg.From, " "),
		strings.Join(msg.To, " "),
		msg.Subject,
		msg.Text,
		msg.HTML,
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
