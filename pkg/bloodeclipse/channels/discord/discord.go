// Package discord implements the Discord channel for BloodEclipse using discordgo.
//
// Features:
//   - Prefix messages and guild slash commands as inbound events
//   - Deferred interaction responses completed by the reply
//   - Rich embeds with an attached or linked image
//   - Typing indicators, reactions and the "Watching ..." activity
//   - Guild and channel allowlists
//   - Automatic reconnection via discordgo's gateway
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
)

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// GuildID is the guild slash commands are registered on.
	GuildID string `yaml:"guild_id"`

	// AllowedGuilds restricts which guild IDs the bot responds in.
	// Empty means respond in all guilds.
	AllowedGuilds []string `yaml:"allowed_guilds"`

	// AllowedChannels restricts which channel IDs the bot responds in.
	// Empty means respond in all channels.
	AllowedChannels []string `yaml:"allowed_channels"`

	// RegisterCommands overwrites the guild's slash commands on connect.
	RegisterCommands bool `yaml:"register_commands"`

	// Activity is the "Watching ..." status set once connected.
	Activity string `yaml:"activity"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RegisterCommands: true,
		Activity:         "WWM Guides | !ai",
	}
}

// Discord implements channels.Channel, channels.PresenceChannel,
// channels.ReactionChannel and channels.CommandChannel.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	// messages is the channel for inbound events forwarded to the assistant.
	messages chan *channels.IncomingMessage

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64

	// commands are the slash commands registered on connect.
	commands     []channels.CommandSpec
	commandNames map[string]bool

	mu sync.RWMutex
}

// New creates a new Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:          cfg,
		logger:       logger.With("component", "discord"),
		messages:     make(chan *channels.IncomingMessage, 256),
		commandNames: make(map[string]bool),
	}
}

// ---------- Channel Interface ----------

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// SetCommands declares the slash commands registered on connect.
func (d *Discord) SetCommands(specs []channels.CommandSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = specs
	d.commandNames = make(map[string]bool, len(specs))
	for _, s := range specs {
		d.commandNames[s.Name] = true
	}
}

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord: connected", "bot", user.Username, "id", user.ID)

	if d.cfg.Activity != "" {
		if err := d.SetActivity(ctx, d.cfg.Activity); err != nil {
			d.logger.Debug("discord: failed to set activity", "error", err)
		}
	}

	if d.cfg.RegisterCommands {
		if err := d.registerCommands(user.ID); err != nil {
			// Prefix commands keep working without slash commands.
			d.logger.Error("discord: registering slash commands", "guild", d.cfg.GuildID, "error", err)
		}
	}

	return nil
}

// Disconnect closes the Discord gateway connection.
func (d *Discord) Disconnect() error {
	if d.session != nil {
		d.session.Close()
	}
	d.connected.Store(false)
	d.logger.Info("discord: disconnected")
	return nil
}

// Send posts a reply, or completes the deferred interaction response when
// message.Interaction is set.
func (d *Discord) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if utf8.RuneCountInString(message.Content) > channels.MaxMessageLength {
		return channels.ErrMessageTooLong
	}
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}

	var err error
	if message.Interaction != nil {
		_, err = d.session.InteractionResponseEdit(
			&discordgo.Interaction{AppID: message.Interaction.AppID, Token: message.Interaction.Token},
			buildWebhookEdit(message),
			discordgo.WithContext(ctx),
		)
	} else {
		if to == "" {
			return channels.ErrNoRecipient
		}
		_, err = d.session.ChannelMessageSendComplex(to, buildMessageSend(message), discordgo.WithContext(ctx))
	}
	if err != nil {
		d.errorCount.Add(1)
		return fmt.Errorf("discord: send: %w", err)
	}
	return nil
}

// Receive returns the inbound events channel.
func (d *Discord) Receive() <-chan *channels.IncomingMessage {
	return d.messages
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// Health returns the channel health status.
func (d *Discord) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := d.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     d.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(d.errorCount.Load()),
	}
}

// ---------- PresenceChannel Interface ----------

// SendTyping sends a typing indicator to the channel.
func (d *Discord) SendTyping(ctx context.Context, to string) error {
	if d.session == nil {
		return nil
	}
	return d.session.ChannelTyping(to, discordgo.WithContext(ctx))
}

// SetActivity sets the bot's "Watching <activity>" status.
func (d *Discord) SetActivity(_ context.Context, activity string) error {
	if d.session == nil {
		return nil
	}
	return d.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: string(discordgo.StatusOnline),
		Activities: []*discordgo.Activity{
			{Name: activity, Type: discordgo.ActivityTypeWatching},
		},
	})
}

// ---------- ReactionChannel Interface ----------

// SendReaction adds a reaction emoji to a message.
func (d *Discord) SendReaction(ctx context.Context, chatID, messageID, emoji string) error {
	if d.session == nil {
		return nil
	}
	return d.session.MessageReactionAdd(chatID, messageID, emoji, discordgo.WithContext(ctx))
}

// ---------- Event Handlers ----------

// onMessageCreate handles incoming Discord messages.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if !d.isAllowed(m.GuildID, m.ChannelID) {
		return
	}

	incoming := &channels.IncomingMessage{
		ID:        m.ID,
		Channel:   "discord",
		Kind:      channels.KindMessage,
		From:      m.Author.ID,
		FromName:  m.Author.Username,
		FromBot:   m.Author.Bot,
		ChatID:    m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}

	d.enqueue(incoming)
}

// onInteractionCreate acknowledges declared slash commands and forwards them.
func (d *Discord) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	d.mu.RLock()
	known := d.commandNames[data.Name]
	d.mu.RUnlock()
	if !known {
		return
	}
	if !d.isAllowed(i.GuildID, i.ChannelID) {
		respondEphemeral(s, i, "Not available in this channel.")
		return
	}

	// Acknowledge immediately to satisfy Discord's 3s limit.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		d.logger.Warn("discord: failed to ack interaction", "command", data.Name, "error", err)
		d.errorCount.Add(1)
		return
	}

	incoming := &channels.IncomingMessage{
		ID:      i.ID,
		Channel: "discord",
		Kind:    channels.KindCommand,
		ChatID:  i.ChannelID,
		GuildID: i.GuildID,
		Command: data.Name,
		Options: optionValues(data.Options),
		Interaction: &channels.InteractionRef{
			AppID:      i.AppID,
			Token:      i.Token,
			ReceivedAt: time.Now(),
		},
		Timestamp: time.Now(),
	}
	if u := interactionUser(i); u != nil {
		incoming.From = u.ID
		incoming.FromName = u.Username
		incoming.FromBot = u.Bot
	}

	if !d.enqueue(incoming) {
		busy := "Too many questions at once, try again in a moment."
		_, _ = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &busy})
	}
}

// enqueue forwards an inbound event, dropping it when the buffer is full.
func (d *Discord) enqueue(msg *channels.IncomingMessage) bool {
	d.lastMsg.Store(time.Now())

	select {
	case d.messages <- msg:
		return true
	default:
		d.logger.Warn("discord: message buffer full, dropping event", "msg_id", msg.ID)
		return false
	}
}

// respondEphemeral sends an ephemeral (visible only to the user) response.
func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// registerCommands overwrites the guild's commands with the declared set.
func (d *Discord) registerCommands(appID string) error {
	d.mu.RLock()
	specs := d.commands
	d.mu.RUnlock()

	if len(specs) == 0 {
		return nil
	}
	if d.cfg.GuildID == "" {
		return fmt.Errorf("guild id is required to register commands")
	}

	created, err := d.session.ApplicationCommandBulkOverwrite(appID, d.cfg.GuildID, toApplicationCommands(specs))
	if err != nil {
		return err
	}
	d.logger.Info("discord: slash commands registered", "guild", d.cfg.GuildID, "count", len(created))
	return nil
}

// ---------- Helpers ----------

func (d *Discord) isAllowed(guildID, channelID string) bool {
	if len(d.cfg.AllowedGuilds) > 0 && guildID != "" && !contains(d.cfg.AllowedGuilds, guildID) {
		return false
	}
	if len(d.cfg.AllowedChannels) > 0 && !contains(d.cfg.AllowedChannels, channelID) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// optionValues flattens the string options of a slash command.
func optionValues(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	values := make(map[string]string, len(opts))
	for _, opt := range opts {
		if opt == nil || opt.Type != discordgo.ApplicationCommandOptionString {
			continue
		}
		values[opt.Name] = opt.StringValue()
	}
	return values
}

// toApplicationCommands converts channel-agnostic specs to discordgo commands.
func toApplicationCommands(specs []channels.CommandSpec) []*discordgo.ApplicationCommand {
	cmds := make([]*discordgo.ApplicationCommand, 0, len(specs))
	for _, s := range specs {
		cmd := &discordgo.ApplicationCommand{
			Name:        s.Name,
			Description: s.Description,
			Type:        discordgo.ChatApplicationCommand,
		}
		for _, o := range s.Options {
			cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			})
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// toMessageEmbed converts a channel embed to a discordgo embed.
func toMessageEmbed(e *channels.Embed) *discordgo.MessageEmbed {
	if e == nil {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	if e.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	return embed
}

// imageFiles returns the attachment for an image carried as raw bytes.
func imageFiles(img *channels.Image) []*discordgo.File {
	if img == nil || len(img.Data) == 0 {
		return nil
	}
	name := img.Filename
	if name == "" {
		name = "image.png"
	}
	return []*discordgo.File{{Name: name, ContentType: img.MimeType, Reader: bytes.NewReader(img.Data)}}
}

func buildMessageSend(m *channels.OutgoingMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content: m.Content,
		Files:   imageFiles(m.Image),
	}
	if embed := toMessageEmbed(m.Embed); embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if m.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: m.ReplyTo}
	}
	return send
}

func buildWebhookEdit(m *channels.OutgoingMessage) *discordgo.WebhookEdit {
	content := m.Content
	embeds := []*discordgo.MessageEmbed{}
	if embed := toMessageEmbed(m.Embed); embed != nil {
		embeds = append(embeds, embed)
	}
	return &discordgo.WebhookEdit{
		Content: &content,
		Embeds:  &embeds,
		Files:   imageFiles(m.Image),
	}
}

// Compile-time interface verification.
var (
	_ channels.Channel         = (*Discord)(nil)
	_ channels.PresenceChannel = (*Discord)(nil)
	_ channels.ReactionChannel = (*Discord)(nil)
	_ channels.CommandChannel  = (*Discord)(nil)
)
