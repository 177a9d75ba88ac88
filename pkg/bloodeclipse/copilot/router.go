// Package copilot – router.go turns inbound events into routes.
package copilot

import (
	"strings"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
)

// RouteKind identifies the flow that answers an event.
type RouteKind int

const (
	// RouteAsk classifies the question, then searches or answers directly.
	RouteAsk RouteKind = iota
	RouteSearch
	RouteDirect
	RouteImagine
	RouteRoast
	RouteHelp
)

// String returns the route name used in logs.
func (k RouteKind) String() string {
	switch k {
	case RouteAsk:
		return "ask"
	case RouteSearch:
		return "search"
	case RouteDirect:
		return "direct"
	case RouteImagine:
		return "imagine"
	case RouteRoast:
		return "roast"
	case RouteHelp:
		return "help"
	default:
		return "unknown"
	}
}

// needsArg reports whether the route is meaningless without an argument.
func (k RouteKind) needsArg() bool { return k != RouteHelp }

// Route is a parsed inbound event.
type Route struct {
	Kind RouteKind

	// Arg is the trimmed question, query, prompt or target.
	Arg string

	// Trigger is the prefix or "/command" that matched (for usage hints).
	Trigger string

	// FromCommand is true for slash commands.
	FromCommand bool
}

// Slash command names and their single string option.
var slashCommands = []struct {
	spec   channels.CommandSpec
	kind   RouteKind
	option string
}{
	{
		spec: channels.CommandSpec{Name: "ask", Description: "Ask BloodEclipse-AI a question (no web search)",
			Options: []channels.CommandOption{{Name: "question", Description: "Your question", Required: true}}},
		kind: RouteDirect, option: "question",
	},
	{
		spec: channels.CommandSpec{Name: "search", Description: "Search the web and get a summarized answer",
			Options: []channels.CommandOption{{Name: "query", Description: "What to search for", Required: true}}},
		kind: RouteSearch, option: "query",
	},
	{
		spec: channels.CommandSpec{Name: "imagine", Description: "Generate an image from a prompt",
			Options: []channels.CommandOption{{Name: "prompt", Description: "Describe the image", Required: true}}},
		kind: RouteImagine, option: "prompt",
	},
	{
		spec: channels.CommandSpec{Name: "roast", Description: "Get someone lovingly roasted",
			Options: []channels.CommandOption{{Name: "target", Description: "Who or what to roast", Required: true}}},
		kind: RouteRoast, option: "target",
	},
	{
		spec: channels.CommandSpec{Name: "help", Description: "Show what BloodEclipse-AI can do"},
		kind: RouteHelp,
	},
}

// CommandSpecs returns the slash commands the bot declares.
func CommandSpecs() []channels.CommandSpec {
	specs := make([]channels.CommandSpec, 0, len(slashCommands))
	for _, c := range slashCommands {
		specs = append(specs, c.spec)
	}
	return specs
}

// ParseRoute parses an inbound event. It returns false when the event must
// be discarded: bot authors, unrecognized prefixes and unknown commands.
func ParseRoute(msg *channels.IncomingMessage, cfg RouterConfig) (Route, bool) {
	if msg == nil || msg.FromBot {
		return Route{}, false
	}

	if msg.Kind == channels.KindCommand {
		for _, c := range slashCommands {
			if c.spec.Name != msg.Command {
				continue
			}
			route := Route{Kind: c.kind, Trigger: "/" + c.spec.Name, FromCommand: true}
			if c.option != "" {
				route.Arg = strings.TrimSpace(msg.Option(c.option))
			}
			return route, true
		}
		return Route{}, false
	}

	prefixes := []struct {
		prefix string
		kind   RouteKind
	}{
		{cfg.AskPrefix, askKind(cfg.PrefixFlow)},
		{cfg.ImaginePrefix, RouteImagine},
		{cfg.RoastPrefix, RouteRoast},
	}

	content := msg.Content

	best := -1
	for i, p := range prefixes {
		if p.prefix == "" || len(content) < len(p.prefix) || !strings.EqualFold(content[:len(p.prefix)], p.prefix) {
			continue
		}
		if best < 0 || len(p.prefix) > len(prefixes[best].prefix) {
			best = i
		}
	}
	if best < 0 {
		return Route{}, false
	}

	p := prefixes[best]
	return Route{
		Kind:    p.kind,
		Arg:     strings.TrimSpace(content[len(p.prefix):]),
		Trigger: p.prefix,
	}, true
}

// askKind maps the configured prefix flow to a route.
func askKind(flow string) RouteKind {
	switch flow {
	case FlowSearch:
		return RouteSearch
	case FlowDirect:
		return RouteDirect
	default:
		return RouteAsk
	}
}
