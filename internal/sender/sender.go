package sender

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tracyhatemice/inboxcord/internal/message"
)

// SnapshotName is the file name used for the rendered email image.
const SnapshotName = "email.png"

// ChannelMessenger is the part of *discordgo.Session the sender uses.
type ChannelMessenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sender publishes messages to a single Discord channel.
type Sender struct {
	client    ChannelMessenger
	channelID string
	keyword   string
	color     int
	logger    *slog.Logger
}

// New creates a Discord sender.
func New(client ChannelMessenger, channelID, keyword string, color int, logger *slog.Logger) *Sender {
	return &Sender{
		client:    client,
		channelID: channelID,
		keyword:   keyword,
		color:     color,
		logger:    logger,
	}
}

// Accepts reports whether msg passes the keyword filter.
func (s *Sender) Accepts(msg *message.Message) bool {
	return Matches(msg, s.keyword)
}

// Send posts msg to the channel. Messages that fail the keyword filter are
// skipped without error. snapshot may be nil.
func (s *Sender) Send(ctx context.Context, msg *message.Message, snapshot []byte) error {
	if !s.Accepts(msg) {
		s.logger.Info("skipping message without keyword", "msg_id", msg.ID, "keyword", s.keyword)
		return nil
	}

	link := ExtractDetailsLink(msg.HTML, msg.Text)
	data := BuildMessage(msg, snapshot, link, s.color)

	sent, err := s.client.ChannelMessageSendComplex(s.channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord send to %s: %w", s.channelID, err)
	}

	s.logger.Info("published",
		"msg_id", msg.ID,
		"discord_msg", sent.ID,
		"files", len(data.Files),
		"link", link != "",
	)
	return nil
}

// BuildMessage lays out the Discord message for msg: one embed carrying the
// subject, optional details link, timestamp and image, plus the snapshot and
// the mail's image attachments as files.
func BuildMessage(msg *message.Message, snapshot []byte, link string, color int) *discordgo.MessageSend {
	description := fmt.Sprintf("**%s**", msg.Subject)
	if link != "" {
		description += fmt.Sprintf("\n\n[View details](%s)", link)
	}

	ts := msg.Date
	if ts.IsZero() {
		ts = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Description: description,
		Color:       color,
		Timestamp:   ts.UTC().Format(time.RFC3339),
	}

	var files []*discordgo.File
	names := make(map[string]bool)
	if len(snapshot) > 0 {
		files = append(files, &discordgo.File{
			Name:        uniqueFileName(SnapshotName, names),
			ContentType: "image/png",
			Reader:      bytes.NewReader(snapshot),
		})
	}
	for _, img := range msg.Images() {
		files = append(files, &discordgo.File{
			Name:        uniqueFileName(img.Filename, names),
			ContentType: img.ContentType,
			Reader:      bytes.NewReader(img.Data),
		})
	}

	if len(files) > 0 {
		embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + files[0].Name}
	}

	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Files:  files,
	}
}

// uniqueFileName returns name reduced to the characters Discord keeps in
// upload names, with a numeric suffix if an earlier file already used it.
func uniqueFileName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	clean = strings.Trim(clean, ".")
	if clean == "" {
		clean = "attachment"
	}

	candidate := clean
	ext := path.Ext(clean)
	base := strings.TrimSuffix(clean, ext)
	for i := 2; used[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	used[candidate] = true
	return candidate
}
