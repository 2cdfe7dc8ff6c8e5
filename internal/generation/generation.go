// Package generation produces conversational replies from cloud, local, or canned sources.
package generation

import (
	"context"
	"strings"

	"github.com/rbright/murmur/internal/backend"
	"github.com/rbright/murmur/internal/quota"
)

// CannedResponse answers when no generator is available.
const CannedResponse = "I'm having trouble understanding that right now. Please try again."

// historyWindow bounds how many prior messages are folded into the prompt.
const historyWindow = 5

var ErrNotInitialized = backend.ErrNotInitialized

// Message is one prior conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one generation call.
type Request struct {
	Message string
	History []Message
}

// Result is a generated reply. Failures carry empty text.
type Result struct {
	Text   string
	Status backend.Status
	Err    error
}

// OK reports whether a reply was produced.
func (r Result) OK() bool {
	return r.Status == backend.StatusOK
}

// Generator is one reply backend.
type Generator interface {
	Name() string
	Variant() quota.GenerationVariant
	Ready() bool
	Generate(ctx context.Context, req Request) Result
}

// BuildPrompt prefixes the message with recent user turns in order.
func BuildPrompt(req Request) string {
	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var b strings.Builder
	for _, m := range history {
		if m.Role != "user" || strings.TrimSpace(m.Content) == "" {
			continue
		}
		b.WriteString("User: ")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteByte('\n')
	}
	b.WriteString(req.Message)
	return b.String()
}

// Canned always returns CannedResponse.
type Canned struct{}

func (Canned) Name() string                     { return "canned" }
func (Canned) Variant() quota.GenerationVariant { return quota.GenerationNone }
func (Canned) Ready() bool                      { return true }

func (Canned) Generate(context.Context, Request) Result {
	return Result{Text: CannedResponse}
}

func failure(err error) Result {
	return Result{Status: backend.StatusOf(err), Err: err}
}
