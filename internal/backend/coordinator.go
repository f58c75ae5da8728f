package backend

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Kind identifies an AI backend.
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
)

// Credentials holds the available backend API keys. Empty means absent.
type Credentials struct {
	OpenAIKey string
	GeminiKey string
}

// geminiSlot serializes every call to the shared backend process-wide:
// the provider tolerates at most one concurrent request, regardless of
// which logical agent or account initiated it. Waiters are released in
// arrival order. There is no timeout; a caller holds the slot for its
// full round trip.
var geminiSlot = semaphore.NewWeighted(1)

// Chatter is a chat-completion backend.
type Chatter interface {
	Chat(ctx context.Context, model, system, user string) (string, error)
}

// Handle is a selected backend plus its concurrency contract.
type Handle struct {
	Kind    Kind
	Model   string
	chatter Chatter
	slot    *semaphore.Weighted // nil means unbounded
}

// Acquire runs fn under the backend's concurrency contract: immediately
// for the pay-per-use backend, under the process-wide single slot for the
// shared one.
func (h *Handle) Acquire(ctx context.Context, fn func(ctx context.Context) error) error {
	if h.slot == nil {
		return fn(ctx)
	}
	if err := h.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.slot.Release(1)
	return fn(ctx)
}

// Chat issues a chat call on the selected backend. Callers that need the
// concurrency contract must wrap the call in Acquire.
func (h *Handle) Chat(ctx context.Context, system, user string) (string, error) {
	return h.chatter.Chat(ctx, h.Model, system, user)
}

// Coordinator selects which backend serves a request.
type Coordinator struct {
	creds       Credentials
	openAIModel string
	geminiModel string

	// test seams; empty means production endpoints
	openAIBase string
	geminiBase string
}

// NewCoordinator creates a Coordinator over the given credentials.
func NewCoordinator(creds Credentials, openAIModel, geminiModel string) *Coordinator {
	if openAIModel == "" {
		openAIModel = "gpt-4o"
	}
	if geminiModel == "" {
		geminiModel = "gemini-1.5-flash"
	}
	return &Coordinator{creds: creds, openAIModel: openAIModel, geminiModel: geminiModel}
}

// WithBaseURLs points both clients at custom endpoints (for testing).
func (c *Coordinator) WithBaseURLs(openAIBase, geminiBase string) *Coordinator {
	c.openAIBase = openAIBase
	c.geminiBase = geminiBase
	return c
}

// Select returns the backend handle for the given preference:
// the pay-per-use backend when preferred and a key exists, otherwise the
// shared backend when its key exists, otherwise the pay-per-use backend as
// last resort. Nil when no credentials exist anywhere.
func (c *Coordinator) Select(prefer Kind) *Handle {
	if prefer == KindOpenAI && c.creds.OpenAIKey != "" {
		return c.openAIHandle()
	}
	if c.creds.GeminiKey != "" {
		return c.geminiHandle()
	}
	if c.creds.OpenAIKey != "" {
		return c.openAIHandle()
	}
	return nil
}

func (c *Coordinator) openAIHandle() *Handle {
	client := NewOpenAIClient(c.creds.OpenAIKey)
	if c.openAIBase != "" {
		client = NewOpenAIClientWithBaseURL(c.creds.OpenAIKey, c.openAIBase)
	}
	return &Handle{Kind: KindOpenAI, Model: c.openAIModel, chatter: client}
}

func (c *Coordinator) geminiHandle() *Handle {
	client := NewGeminiClient(c.creds.GeminiKey)
	if c.geminiBase != "" {
		client = NewGeminiClientWithBaseURL(c.creds.GeminiKey, c.geminiBase)
	}
	return &Handle{Kind: KindGemini, Model: c.geminiModel, chatter: client, slot: geminiSlot}
}
