// Package copilot – prompts.go holds the persona prompts, the prompt
// templates for each flow and the canned replies.
package copilot

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is the main persona.
const DefaultSystemPrompt = `You are BloodEclipse-AI, the official Discord bot for the BloodEclipse guild in the MMORPG "Where Winds Meet".
Personality:
- Gen-Z gamer vibe: slang like "fam", "pog", "no cap", emojis, brainrot style.
- Helpful, concise, gives clear builds/steps and citations when factual info is used.
- If unsure, admit it with a funny tone and suggest asking a veteran.
Limit replies to ~200 words unless user asks for deep dive.`

// DefaultRoastPrompt is the persona used by the roast command.
const DefaultRoastPrompt = `You are BloodEclipse-AI: savage gamer personality.
- Friendly but roasty: clown on the target, never punch down, no slurs, nothing about real-world identity.
- Use emojis.
- Concise answers: 2-4 lines max.`

// Canned replies.
const (
	ReplyDecisionFailed = "My brain went AFK. Can you rephrase? 🤯"
	ReplySummaryFailed  = "Low-key couldn't summarize the results, try rephrasing or ask for a manual guide. 😅"
	ReplyImageFailed    = "Image gen tripped over its own cape, try another prompt. 🎨"
	ReplyRoastFailed    = "Couldn't cook a roast this time, you got lucky fam. 🔥"
	ReplyPanic          = "Oof, my circuits glitched — try again in a sec. 🫠"
)

// usageHint returns the reply for a recognized trigger with no argument.
func usageHint(kind RouteKind, trigger string) string {
	switch kind {
	case RouteImagine:
		return fmt.Sprintf("Yo fam — type a prompt after `%s`, e.g. `%s a crimson moon over a pagoda` 🎨", trigger, trigger)
	case RouteRoast:
		return fmt.Sprintf("Who we cooking? Type a name after `%s`, e.g. `%s my guild leader` 🔥", trigger, trigger)
	default:
		return fmt.Sprintf("Yo fam — type a question after `%s`, e.g. `%s best sword build` ✨", trigger, trigger)
	}
}

// helpText renders the /help card body.
func helpText(cfg RouterConfig) string {
	var sb strings.Builder
	sb.WriteString("**BloodEclipse-AI commands** ⚔️\n")
	fmt.Fprintf(&sb, "`%s <question>` ask anything, I'll search the web when needed\n", cfg.AskPrefix)
	fmt.Fprintf(&sb, "`%s <prompt>` generate an image\n", cfg.ImaginePrefix)
	fmt.Fprintf(&sb, "`%s <target>` lovingly roast someone\n", cfg.RoastPrefix)
	sb.WriteString("`/ask` direct answer, no search\n")
	sb.WriteString("`/search` always search the web first\n")
	sb.WriteString("`/imagine`, `/roast`, `/help` same as above, slash style ✨")
	return sb.String()
}

// decisionPrompt asks the model whether the query needs a web search.
func decisionPrompt(query, mode string) string {
	if mode == IntentHeuristic {
		return fmt.Sprintf(`You are BloodEclipse-AI (Gen-Z, gamer slangs). The user asked: "%s"
Decide if this needs a web search for factual, up-to-date info (yes/no).
If YES -> Return exactly the short search query to use (1 line only).
If NO -> Return the answer to the user directly in your personality (with emojis).`, query)
	}

	return fmt.Sprintf(`You are BloodEclipse-AI (Gen-Z, gamer slangs). The user asked: "%s"
Decide if this needs a web search for factual, up-to-date info.
Reply with ONLY a JSON object, no prose:
{"needs_search": true, "payload": "<short search query, 1 line>"}
or
{"needs_search": false, "payload": "<your answer to the user, in your personality, with emojis>"}`, query)
}

// summaryPrompt asks the model to answer from search snippets.
func summaryPrompt(query, snippets string) string {
	return fmt.Sprintf(`User query: "%s"
Web search snippets:
%s

Using the snippets, produce a concise, Gen-Z, emoji-rich answer to the user's question.
The source links are attached below your answer automatically, do not list them yourself.
Keep it friendly and no longer than ~200 words unless the user asks for more.`, query, snippets)
}

// roastPrompt asks for a roast of target.
func roastPrompt(target string) string {
	return fmt.Sprintf("Roast %s. Keep it playful, Where Winds Meet flavored if you can.", target)
}

// imageCaption is the reply body shown with a generated image.
func imageCaption(prompt string) string {
	return fmt.Sprintf("Fresh from the forge, fam: *%s* 🎨", prompt)
}
