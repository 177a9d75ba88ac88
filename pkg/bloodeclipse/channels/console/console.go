// Package console implements a terminal channel for trying the bot locally.
// Lines typed at the prompt are parsed like guild messages ("!ai ...") or
// slash commands ("/ask question:..."); replies are printed as text cards.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
)

const (
	// ChannelName identifies the console channel.
	ChannelName = "console"

	// chatID is the single conversation the console has.
	chatID = "console"
)

// Config holds the console configuration.
type Config struct {
	// Prompt is shown before each input line.
	Prompt string

	// HistoryFile keeps input history across sessions. Empty disables it.
	HistoryFile string

	// User is the sender name attached to typed messages.
	User string
}

// DefaultConfig returns the default console configuration.
func DefaultConfig() Config {
	return Config{
		Prompt: "\033[31mbloodeclipse ⚔\033[0m » ",
		User:   "you",
	}
}

// Console implements channels.Channel on a readline terminal.
type Console struct {
	cfg    Config
	logger *slog.Logger

	rl  *readline.Instance
	out io.Writer

	messages chan *channels.IncomingMessage
	done     chan struct{}

	// defaults maps a command name to its first option, so
	// "/ask what is pog" works without "question:".
	defaults map[string]string

	connected  atomic.Bool
	errorCount atomic.Int64
	lastMsg    atomic.Value // time.Time

	mu sync.Mutex
}

// New creates a console channel.
func New(cfg Config, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.User == "" {
		cfg.User = "you"
	}
	return &Console{
		cfg:      cfg,
		logger:   logger.With("channel", ChannelName),
		out:      os.Stdout,
		messages: make(chan *channels.IncomingMessage, 16),
		done:     make(chan struct{}),
		defaults: make(map[string]string),
	}
}

// Name returns the channel identifier.
func (c *Console) Name() string { return ChannelName }

// SetCommands records the default option of each command.
func (c *Console) SetCommands(specs []channels.CommandSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range specs {
		if len(s.Options) > 0 {
			c.defaults[s.Name] = s.Options[0].Name
		} else {
			c.defaults[s.Name] = ""
		}
	}
}

// Connect opens the terminal and starts reading lines.
func (c *Console) Connect(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.cfg.Prompt,
		HistoryFile:     c.cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("console: opening terminal: %w", err)
	}

	c.mu.Lock()
	c.rl = rl
	c.out = rl.Stdout()
	c.mu.Unlock()

	c.connected.Store(true)
	go c.readLoop(ctx)
	return nil
}

// Disconnect closes the terminal.
func (c *Console) Disconnect() error {
	if !c.connected.Swap(false) {
		return nil
	}
	c.mu.Lock()
	rl := c.rl
	c.mu.Unlock()
	if rl != nil {
		return rl.Close()
	}
	return nil
}

// Done is closed when input ends (EOF, "exit" or Ctrl-C on an empty line).
func (c *Console) Done() <-chan struct{} { return c.done }

// Receive returns the inbound stream.
func (c *Console) Receive() <-chan *channels.IncomingMessage { return c.messages }

// IsConnected reports whether the terminal is open.
func (c *Console) IsConnected() bool { return c.connected.Load() }

// Health returns the channel health status.
func (c *Console) Health() channels.HealthStatus {
	h := channels.HealthStatus{
		Connected:  c.IsConnected(),
		ErrorCount: int(c.errorCount.Load()),
	}
	if t, ok := c.lastMsg.Load().(time.Time); ok {
		h.LastMessageAt = t
	}
	return h
}

// Send prints a reply.
func (c *Console) Send(_ context.Context, _ string, msg *channels.OutgoingMessage) error {
	if msg == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.out, Render(msg)+"\n"); err != nil {
		c.errorCount.Add(1)
		return fmt.Errorf("console: write: %w", err)
	}
	return nil
}

// SendReaction prints the reaction under the reply.
func (c *Console) SendReaction(_ context.Context, _, _, emoji string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "  reacted %s\n\n", emoji)
	return err
}

func (c *Console) readLoop(ctx context.Context) {
	defer close(c.messages)
	defer close(c.done)

	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("console: read failed", "error", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		}

		msg := c.Parse(line)
		c.lastMsg.Store(msg.Timestamp)

		select {
		case c.messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// Parse turns a typed line into an event from the console user.
func (c *Console) Parse(line string) *channels.IncomingMessage {
	c.mu.Lock()
	msg := ParseLine(line, c.defaults)
	c.mu.Unlock()

	msg.From = c.cfg.User
	msg.FromName = c.cfg.User
	return msg
}

// optionKey matches "name:" at the start of the input or after whitespace.
var optionKey = regexp.MustCompile(`(?:^|\s)([a-z_]+):`)

// ParseLine turns a typed line into an event. "/name key:value ..." is a
// command; text after the name without a key goes to the command's default
// option. Anything else is a chat message.
func ParseLine(line string, defaults map[string]string) *channels.IncomingMessage {
	msg := &channels.IncomingMessage{
		ID:        uuid.New().String(),
		Channel:   ChannelName,
		Kind:      channels.KindMessage,
		ChatID:    chatID,
		Content:   line,
		Timestamp: time.Now(),
	}

	if !strings.HasPrefix(line, "/") {
		return msg
	}

	name, rest, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	msg.Kind = channels.KindCommand
	msg.Command = strings.ToLower(name)
	msg.Options = parseOptions(strings.TrimSpace(rest), defaults[msg.Command])
	return msg
}

func parseOptions(rest, defaultOption string) map[string]string {
	opts := make(map[string]string)
	if rest == "" {
		return opts
	}

	locs := optionKey.FindAllStringSubmatchIndex(rest, -1)
	if len(locs) == 0 || strings.TrimSpace(rest[:locs[0][0]]) != "" {
		if defaultOption != "" {
			opts[defaultOption] = rest
		}
		return opts
	}

	for i, loc := range locs {
		key := rest[loc[2]:loc[3]]
		end := len(rest)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		opts[key] = strings.TrimSpace(rest[loc[1]:end])
	}
	return opts
}

// Render formats a reply as terminal text.
func Render(msg *channels.OutgoingMessage) string {
	var sb strings.Builder

	if e := msg.Embed; e != nil {
		if e.Title != "" {
			sb.WriteString("┃ " + e.Title + "\n")
		}
		sb.WriteString(e.Description)
		for _, f := range e.Fields {
			sb.WriteString("\n\n" + f.Name + "\n" + f.Value)
		}
		if e.ImageURL != "" && !strings.HasPrefix(e.ImageURL, "attachment://") {
			sb.WriteString("\n\n[image] " + e.ImageURL)
		}
		if e.Footer != "" {
			sb.WriteString("\n─ " + e.Footer)
		}
	} else {
		sb.WriteString(msg.Content)
	}

	if img := msg.Image; img != nil && len(img.Data) > 0 {
		fmt.Fprintf(&sb, "\n[attachment] %s (%s, %d bytes)", img.Filename, img.MimeType, len(img.Data))
	}
	return sb.String()
}

var (
	_ channels.Channel         = (*Console)(nil)
	_ channels.ReactionChannel = (*Console)(nil)
	_ channels.CommandChannel  = (*Console)(nil)
)
