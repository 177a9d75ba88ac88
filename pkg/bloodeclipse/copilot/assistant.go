// Package copilot implements the BloodEclipse-AI orchestrator.
// Coordinates channels, intent classification, web search, completions and
// image generation to turn guild messages and slash commands into replies.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/imagegen"
	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/search"
)

const (
	// interactionWindow is how long an interaction token stays valid.
	interactionWindow = 15 * time.Minute

	// interactionMargin is kept free at the end of the interaction window.
	interactionMargin = 30 * time.Second

	// sendTimeout bounds the delivery of one reply.
	sendTimeout = 10 * time.Second

	// typingInterval refreshes the typing indicator before it expires.
	typingInterval = 8 * time.Second
)

// Providers are the strategies selected by configuration.
type Providers struct {
	Completer Completer
	Search    *search.Service
	Images    imagegen.Provider
}

// BuildProviders creates the completion, search and image providers named in
// cfg. Credentials must already be resolved.
func BuildProviders(ctx context.Context, cfg *Config, logger *slog.Logger) (*Providers, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var completer Completer
	switch cfg.Completion.Provider {
	case "gemini":
		g, err := NewGeminiClient(ctx, cfg.Completion, logger)
		if err != nil {
			return nil, err
		}
		completer = g
	default:
		completer = NewLLMClient(cfg.Completion, logger)
	}

	sp, err := search.NewProvider(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}

	images, err := imagegen.New(ctx, cfg.Image)
	if err != nil {
		return nil, fmt.Errorf("image provider: %w", err)
	}

	return &Providers{
		Completer: completer,
		Search:    search.NewService(sp, cfg.Search, logger),
		Images:    images,
	}, nil
}

// Assistant is the BloodEclipse-AI orchestrator.
// Message flow: receive → route → (classify → search → summarize | answer |
// imagine | roast | help) → format → send → react.
type Assistant struct {
	cfg *Config

	completer Completer
	search    *search.Service
	images    imagegen.Provider

	// channels delivers replies and exposes presence and reactions.
	channels *channels.Manager

	formatter *Formatter
	logger    *slog.Logger

	// wg tracks in-flight pipelines. Add happens under mu and never after
	// draining is set, so Wait cannot race a late Add.
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// New creates an Assistant.
func New(cfg *Config, providers *Providers, mgr *channels.Manager, logger *slog.Logger) *Assistant {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if providers == nil {
		providers = &Providers{}
	}

	return &Assistant{
		cfg:       cfg,
		completer: providers.Completer,
		search:    providers.Search,
		images:    providers.Images,
		channels:  mgr,
		formatter: NewFormatter(cfg.Embed),
		logger:    logger.With("component", "assistant"),
	}
}

// Run consumes the channel manager's stream until ctx ends or the stream is
// closed. Each event is handled in its own goroutine.
func (a *Assistant) Run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-a.channels.Messages():
			if !ok {
				return
			}
			if !a.track() {
				a.logger.Debug("dropping event during shutdown", "channel", msg.Channel)
				return
			}
			go func() {
				defer a.wg.Done()
				a.HandleMessage(context.WithoutCancel(ctx), msg)
			}()

		case <-ctx.Done():
			return
		}
	}
}

// track registers a pipeline unless Wait has started.
func (a *Assistant) track() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.draining {
		return false
	}
	a.wg.Add(1)
	return true
}

// Wait stops Run from starting new pipelines and blocks until every
// in-flight pipeline has returned. Events Run receives afterwards are
// dropped and Run returns.
func (a *Assistant) Wait() {
	a.mu.Lock()
	a.draining = true
	a.mu.Unlock()
	a.wg.Wait()
}

// HandleMessage runs the full pipeline for one inbound event. Discarded
// events produce no reply; accepted events produce exactly one.
func (a *Assistant) HandleMessage(ctx context.Context, msg *channels.IncomingMessage) {
	route, ok := ParseRoute(msg, a.cfg.Router)
	if !ok {
		return
	}

	start := time.Now()
	logger := a.logger.With(
		"request_id", uuid.New().String(),
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"from", msg.From,
		"intent", route.Kind.String(),
	)

	ctx, cancel := a.requestContext(ctx, msg)
	defer cancel()

	replied := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
			if !replied {
				a.deliver(ctx, logger, msg, NewOutbound(ReplyPanic, nil, nil))
			}
		}
	}()

	if !route.FromCommand && a.cfg.Router.Typing {
		stop := a.keepTyping(ctx, logger, msg)
		defer stop()
	}

	logger.Info("request accepted", "arg_len", len(route.Arg))

	out := a.Process(ctx, route)

	replied = true
	a.deliver(ctx, logger, msg, out)

	if !route.FromCommand {
		a.react(ctx, logger, msg)
	}

	logger.Info("request done", "duration_ms", time.Since(start).Milliseconds())
}

// Process computes the reply for a route. It never fails: provider errors
// become the persona's canned apologies.
func (a *Assistant) Process(ctx context.Context, route Route) *OutboundMessage {
	if route.Kind.needsArg() && route.Arg == "" {
		return NewOutbound(usageHint(route.Kind, route.Trigger), nil, nil)
	}

	switch route.Kind {
	case RouteHelp:
		return NewOutbound(helpText(a.cfg.Router), nil, nil)
	case RouteDirect:
		return a.answer(ctx, route.Arg)
	case RouteSearch:
		return a.searchAndSummarize(ctx, route.Arg, route.Arg)
	case RouteImagine:
		return a.imagine(ctx, route.Arg)
	case RouteRoast:
		return a.roast(ctx, route.Arg)
	default:
		return a.ask(ctx, route.Arg)
	}
}

// ask lets the model decide between a web search and a direct answer.
func (a *Assistant) ask(ctx context.Context, question string) *OutboundMessage {
	mode := a.cfg.Router.IntentMode
	raw, err := a.complete(ctx, a.cfg.Persona.System, decisionPrompt(question, mode))
	if err != nil {
		a.logger.Warn("decision failed", "error", err)
		return NewOutbound(ReplyDecisionFailed, nil, nil)
	}

	d := classifyDecision(raw, question, mode)
	if d.NeedsSearch {
		return a.searchAndSummarize(ctx, d.Payload, question)
	}
	if d.Payload == "" {
		return NewOutbound(ReplyDecisionFailed, nil, nil)
	}
	return NewOutbound(d.Payload, nil, nil)
}

// answer replies with a single completion and no search.
func (a *Assistant) answer(ctx context.Context, question string) *OutboundMessage {
	text, err := a.complete(ctx, a.cfg.Persona.System, question)
	if err != nil {
		a.logger.Warn("direct answer failed", "error", err)
		return NewOutbound(ReplyDecisionFailed, nil, nil)
	}
	return NewOutbound(text, nil, nil)
}

// searchAndSummarize looks query up and summarizes the findings for
// question. Sources are attached even when summarizing fails.
func (a *Assistant) searchAndSummarize(ctx context.Context, query, question string) *OutboundMessage {
	var findings search.Findings
	if a.search != nil {
		findings = a.search.Lookup(ctx, query)
	} else {
		findings = search.Findings{Context: search.FailedContext}
	}

	text, err := a.complete(ctx, a.cfg.Persona.System, summaryPrompt(question, findings.Context))
	if err != nil {
		a.logger.Warn("summary failed", "error", err)
		return NewOutbound(ReplySummaryFailed, findings.Links, nil)
	}
	return NewOutbound(text, findings.Links, nil)
}

func (a *Assistant) imagine(ctx context.Context, prompt string) *OutboundMessage {
	if a.images == nil {
		return NewOutbound(ReplyImageFailed, nil, nil)
	}
	img, err := a.images.Generate(ctx, prompt)
	if err != nil {
		a.logger.Warn("image generation failed", "provider", a.images.Name(), "error", err)
		return NewOutbound(ReplyImageFailed, nil, nil)
	}
	return NewOutbound(imageCaption(prompt), nil, img)
}

func (a *Assistant) roast(ctx context.Context, target string) *OutboundMessage {
	text, err := a.complete(ctx, a.cfg.Persona.Roast, roastPrompt(target))
	if err != nil {
		a.logger.Warn("roast failed", "error", err)
		return NewOutbound(ReplyRoastFailed, nil, nil)
	}
	return NewOutbound(text, nil, nil)
}

func (a *Assistant) complete(ctx context.Context, system, user string) (string, error) {
	if a.completer == nil {
		return "", ErrEmptyCompletion
	}
	return a.completer.Complete(ctx, system, user)
}

// deliver sends the embed rendering of out and falls back to plain text when
// that fails. Delivery runs on its own deadline so a reply still goes out
// after the pipeline timed out.
func (a *Assistant) deliver(ctx context.Context, logger *slog.Logger, msg *channels.IncomingMessage, out *OutboundMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	embed := a.formatter.Embed(out)
	addressReply(embed, msg)
	err := a.channels.Send(ctx, msg.Channel, msg.ChatID, embed)
	if err == nil {
		return
	}
	logger.Warn("embed send failed, falling back to plain text", "error", err)

	plain := a.formatter.PlainText(out)
	addressReply(plain, msg)
	if err := a.channels.Send(ctx, msg.Channel, msg.ChatID, plain); err != nil {
		logger.Error("failed to send reply", "error", err)
	}
}

// addressReply points out at the event it answers.
func addressReply(out *channels.OutgoingMessage, msg *channels.IncomingMessage) {
	if msg.Interaction != nil {
		out.Interaction = msg.Interaction
		return
	}
	out.ReplyTo = msg.ID
}

// react adds a random configured emoji to the triggering message.
func (a *Assistant) react(ctx context.Context, logger *slog.Logger, msg *channels.IncomingMessage) {
	emojis := a.cfg.Router.Reactions
	if len(emojis) == 0 || msg.ID == "" {
		return
	}
	ch, ok := a.channels.Channel(msg.Channel)
	if !ok {
		return
	}
	rc, ok := ch.(channels.ReactionChannel)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	emoji := emojis[rand.IntN(len(emojis))]
	if err := rc.SendReaction(ctx, msg.ChatID, msg.ID, emoji); err != nil {
		logger.Debug("reaction failed", "emoji", emoji, "error", err)
	}
}

// keepTyping shows the typing indicator until the returned stop func is
// called.
func (a *Assistant) keepTyping(ctx context.Context, logger *slog.Logger, msg *channels.IncomingMessage) func() {
	ch, ok := a.channels.Channel(msg.Channel)
	if !ok {
		return func() {}
	}
	pc, ok := ch.(channels.PresenceChannel)
	if !ok {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := pc.SendTyping(ctx, msg.ChatID); err != nil {
				logger.Debug("typing indicator failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// requestContext bounds a pipeline by the request timeout and, for
// interactions, by the interaction token window.
func (a *Assistant) requestContext(parent context.Context, msg *channels.IncomingMessage) (context.Context, context.CancelFunc) {
	timeout := a.cfg.Router.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	ctx, cancel := context.WithTimeout(parent, timeout)

	if msg.Interaction == nil || msg.Interaction.ReceivedAt.IsZero() {
		return ctx, cancel
	}

	deadline := msg.Interaction.ReceivedAt.Add(interactionWindow - interactionMargin)
	ictx, icancel := context.WithDeadline(ctx, deadline)
	return ictx, func() {
		icancel()
		cancel()
	}
}
