package console

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/pkg/bloodeclipse/channels"
)

func TestParseLine(t *testing.T) {
	defaults := map[string]string{"ask": "question", "search": "query", "help": ""}

	tests := []struct {
		name    string
		line    string
		kind    channels.MessageKind
		command string
		options map[string]string
	}{
		{"prefix message", "!ai best sword build", channels.KindMessage, "", nil},
		{"keyed option", "/ask question:What is pog?", channels.KindCommand, "ask", map[string]string{"question": "What is pog?"}},
		{"default option", "/ask what is pog", channels.KindCommand, "ask", map[string]string{"question": "what is pog"}},
		{"colon inside text", "/search boss guide: phase 2", channels.KindCommand, "search", map[string]string{"query": "boss guide: phase 2"}},
		{"multiple keys", "/roast target:Kai style:spicy", channels.KindCommand, "roast", map[string]string{"target": "Kai", "style": "spicy"}},
		{"no options", "/help", channels.KindCommand, "help", map[string]string{}},
		{"upper case command", "/ASK question:x", channels.KindCommand, "ask", map[string]string{"question": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ParseLine(tt.line, defaults)
			if msg.Kind != tt.kind {
				t.Fatalf("kind = %q, want %q", msg.Kind, tt.kind)
			}
			if msg.ID == "" || msg.Channel != ChannelName || msg.ChatID != chatID {
				t.Errorf("addressing = %+v", msg)
			}
			if tt.kind == channels.KindMessage {
				if msg.Content != tt.line {
					t.Errorf("content = %q", msg.Content)
				}
				return
			}
			if msg.Command != tt.command {
				t.Errorf("command = %q, want %q", msg.Command, tt.command)
			}
			if !reflect.DeepEqual(msg.Options, tt.options) {
				t.Errorf("options = %v, want %v", msg.Options, tt.options)
			}
		})
	}
}

func TestSetCommands(t *testing.T) {
	c := New(DefaultConfig(), nil)
	c.SetCommands([]channels.CommandSpec{
		{Name: "imagine", Options: []channels.CommandOption{{Name: "prompt"}}},
		{Name: "help"},
	})

	if c.defaults["imagine"] != "prompt" {
		t.Errorf("imagine default = %q", c.defaults["imagine"])
	}
	msg := ParseLine("/imagine a crimson moon", c.defaults)
	if msg.Option("prompt") != "a crimson moon" {
		t.Errorf("prompt = %q", msg.Option("prompt"))
	}
}

func TestRender(t *testing.T) {
	embed := &channels.OutgoingMessage{Embed: &channels.Embed{
		Title:       "BloodEclipse-AI ⚔️",
		Description: "the answer",
		Footer:      "footer",
		Fields:      []channels.EmbedField{{Name: "Sources", Value: "<https://a.example>"}},
		ImageURL:    "https://img.example/a.png",
	}}
	got := Render(embed)
	for _, want := range []string{"┃ BloodEclipse-AI ⚔️", "the answer", "Sources\n<https://a.example>", "[image] https://img.example/a.png", "─ footer"} {
		if !strings.Contains(got, want) {
			t.Errorf("render missing %q:\n%s", want, got)
		}
	}

	plain := &channels.OutgoingMessage{
		Content: "plain",
		Image:   &channels.Image{Data: []byte{1, 2, 3}, MimeType: "image/png", Filename: "image.png"},
	}
	if got := Render(plain); got != "plain\n[attachment] image.png (image/png, 3 bytes)" {
		t.Errorf("render = %q", got)
	}
}

func TestSendWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	c := New(DefaultConfig(), nil)
	c.out = &buf

	if err := c.Send(context.Background(), chatID, &channels.OutgoingMessage{Content: "gg"}); err != nil {
		t.Fatal(err)
	}
	if err := c.SendReaction(context.Background(), chatID, "m", "🔥"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "gg\n  reacted 🔥\n\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestHealth(t *testing.T) {
	c := New(DefaultConfig(), nil)
	if c.Health().Connected {
		t.Error("new console should not be connected")
	}
	now := time.Now()
	c.lastMsg.Store(now)
	if !c.Health().LastMessageAt.Equal(now) {
		t.Error("last message time not reported")
	}
}
