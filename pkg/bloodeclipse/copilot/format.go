// Package copilot – format.go renders replies as embeds or plain text within
// Discord's limits.
package copilot

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/imagegen"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/search"
)

const (
	// embedFieldLimit is Discord's maximum embed field value length.
	embedFieldLimit = 1024

	// attachmentName is the filename used for images sent as bytes.
	attachmentName = "image.png"
)

// OutboundMessage is the single reply produced for an accepted event.
type OutboundMessage struct {
	// Body is the reply text, at most 2000 characters.
	Body string

	// Sources are source links, at most 5.
	Sources []string

	// Image is an optional generated image.
	Image *imagegen.Image
}

// NewOutbound builds a reply, enforcing the body and source limits.
func NewOutbound(body string, sources []string, img *imagegen.Image) *OutboundMessage {
	if len(sources) > search.MaxLinks {
		sources = sources[:search.MaxLinks]
	}
	return &OutboundMessage{
		Body:    Truncate(body, channels.MaxMessageLength),
		Sources: sources,
		Image:   img,
	}
}

// Truncate bounds s to limit characters. A cut string keeps its first
// limit-3 characters followed by "...".
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}

// Formatter renders replies for delivery.
type Formatter struct {
	cfg EmbedConfig
	now func() time.Time
}

// NewFormatter creates a formatter for the given embed settings.
func NewFormatter(cfg EmbedConfig) *Formatter {
	return &Formatter{cfg: cfg, now: time.Now}
}

// Embed renders the rich version of a reply.
func (f *Formatter) Embed(msg *OutboundMessage) *channels.OutgoingMessage {
	embed := &channels.Embed{
		Title:       f.cfg.Title,
		Description: Truncate(msg.Body, channels.MaxMessageLength),
		Color:       f.cfg.Color,
		Footer:      f.cfg.Footer,
		Timestamp:   f.now(),
	}
	if v := sourceLines(msg.Sources, embedFieldLimit); v != "" {
		embed.Fields = append(embed.Fields, channels.EmbedField{Name: "Sources", Value: v})
	}

	out := &channels.OutgoingMessage{Embed: embed}
	if img := toChannelImage(msg.Image); img != nil {
		out.Image = img
		if len(img.Data) > 0 {
			embed.ImageURL = "attachment://" + img.Filename
		} else {
			embed.ImageURL = img.URL
		}
	}
	return out
}

// PlainText renders the text-only version of a reply, bounded to 2000
// characters. Image bytes stay attached; image URLs are appended as a line.
func (f *Formatter) PlainText(msg *OutboundMessage) *channels.OutgoingMessage {
	var sb strings.Builder
	sb.WriteString(msg.Body)

	if v := sourceLines(msg.Sources, channels.MaxMessageLength); v != "" {
		sb.WriteString("\n\n**Sources**\n")
		sb.WriteString(v)
	}

	out := &channels.OutgoingMessage{}
	if img := toChannelImage(msg.Image); img != nil {
		if len(img.Data) > 0 {
			out.Image = img
		} else {
			sb.WriteString("\n")
			sb.WriteString(img.URL)
		}
	}

	out.Content = Truncate(sb.String(), channels.MaxMessageLength)
	return out
}

// sourceLines renders up to 5 links as "<url>" lines, stopping before the
// value would exceed limit.
func sourceLines(sources []string, limit int) string {
	var lines []string
	size := 0
	for i, s := range sources {
		if i >= search.MaxLinks {
			break
		}
		line := "<" + s + ">"
		if size+len(line)+1 > limit {
			break
		}
		lines = append(lines, line)
		size += len(line) + 1
	}
	return strings.Join(lines, "\n")
}

func toChannelImage(img *imagegen.Image) *channels.Image {
	if img == nil || (img.URL == "" && len(img.Data) == 0) {
		return nil
	}
	return &channels.Image{
		URL:      img.URL,
		Data:     img.Data,
		MimeType: img.MimeType,
		Filename: attachmentName,
	}
}
