// Package channels defines the interfaces and types for BloodEclipse
// communication channels. Each channel (Discord, the local console) implements
// the Channel interface to receive and send messages in a unified way.
package channels

import (
	"context"
	"errors"
	"time"
)

// MessageKind identifies how an inbound event reached the bot.
type MessageKind string

const (
	// KindMessage is a plain chat message (prefix commands).
	KindMessage MessageKind = "message"

	// KindCommand is a registered application (slash) command.
	KindCommand MessageKind = "command"
)

// MaxMessageLength is the platform limit for a single message body.
const MaxMessageLength = 2000

// Channel defines the interface that every communication channel must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord", "console").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the specified chat.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// PresenceChannel extends Channel with typing and activity indicators.
type PresenceChannel interface {
	Channel

	// SendTyping sends a "typing..." indicator to the chat.
	SendTyping(ctx context.Context, to string) error

	// SetActivity updates the bot's "Watching ..." status line.
	SetActivity(ctx context.Context, activity string) error
}

// ReactionChannel extends Channel with message reaction support.
type ReactionChannel interface {
	Channel

	// SendReaction adds a reaction emoji to a specific message.
	SendReaction(ctx context.Context, chatID, messageID, emoji string) error
}

// CommandChannel extends Channel with application command registration.
type CommandChannel interface {
	Channel

	// SetCommands declares the commands the channel should register on connect.
	SetCommands(specs []CommandSpec)
}

// CommandSpec declares an application command with string options.
type CommandSpec struct {
	Name        string
	Description string
	Options     []CommandOption
}

// CommandOption is a single string option of an application command.
type CommandOption struct {
	Name        string
	Description string
	Required    bool
}

// InteractionRef identifies a deferred interaction response that must be
// completed instead of posting a new message.
type InteractionRef struct {
	AppID string
	Token string

	// ReceivedAt is when the interaction was acknowledged.
	ReceivedAt time.Time
}

// IncomingMessage represents an event received from any channel.
type IncomingMessage struct {
	// ID is the unique message (or interaction) identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "discord").
	Channel string

	// Kind tells whether this is a chat message or a slash command.
	Kind MessageKind

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// FromBot is true when the author is a bot account.
	FromBot bool

	// ChatID is the channel or DM identifier replies go to.
	ChatID string

	// GuildID is the guild the event came from (empty for DMs).
	GuildID string

	// Content is the text content of the message.
	Content string

	// Command is the slash command name (KindCommand only).
	Command string

	// Options holds the slash command string options (KindCommand only).
	Options map[string]string

	// Interaction is set for slash commands; replies complete it.
	Interaction *InteractionRef

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// Option returns a slash command option value, or "" when absent.
func (m *IncomingMessage) Option(name string) string {
	if m.Options == nil {
		return ""
	}
	return m.Options[name]
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the plain text content of the message.
	Content string

	// Embed is an optional rich representation of the message.
	Embed *Embed

	// Image is an optional image to attach or reference.
	Image *Image

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string

	// Interaction, when set, completes a deferred interaction response.
	Interaction *InteractionRef
}

// Embed is a channel-agnostic rich message card.
type Embed struct {
	Title       string
	Description string
	Color       int
	Footer      string
	Timestamp   time.Time
	Fields      []EmbedField

	// ImageURL references an image shown inside the card. Use
	// "attachment://<filename>" for an attached Image with Data.
	ImageURL string
}

// EmbedField is a titled block inside an embed.
type EmbedField struct {
	Name  string
	Value string
}

// Image is either a remote URL or raw bytes to attach.
type Image struct {
	URL      string
	Data     []byte
	MimeType string
	Filename string
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool           `json:"connected"`
	LastMessageAt time.Time      `json:"last_message_at"`
	ErrorCount    int            `json:"error_count"`
	Details       map[string]any `json:"details,omitempty"`
}

// Errors.
var (
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrMessageTooLong      = errors.New("message exceeds the platform length limit")
	ErrNoRecipient         = errors.New("message has no recipient")
)
