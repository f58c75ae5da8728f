package copy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a direct-response copywriter for paid social ads.
Given product context, write ad copy variants.

Respond with JSON only, in this exact shape:
{"variants": [{"headline": "...", "primary_text": "...", "description": "...", "call_to_action": "..."}]}

Rules:
- headline: at most 40 characters, benefit-led, no clickbait.
- primary_text: 1-3 short sentences, concrete, no emoji walls.
- description: at most 30 characters.
- call_to_action: one of SHOP_NOW, LEARN_MORE, SIGN_UP, GET_OFFER.
- Produce exactly the number of variants requested.`

// Backend is the slice of the access coordinator's handle the generator
// needs.
type Backend interface {
	Acquire(ctx context.Context, fn func(ctx context.Context) error) error
	Chat(ctx context.Context, system, user string) (string, error)
}

// Variant is one generated piece of ad copy.
type Variant struct {
	Headline     string `json:"headline"`
	PrimaryText  string `json:"primary_text"`
	Description  string `json:"description"`
	CallToAction string `json:"call_to_action"`
}

// Request carries the product context for a generation round. Exactly one
// of ProductURL or BriefPDF is expected; Notes is free-form extra context.
type Request struct {
	ProductURL string
	BriefPDF   []byte
	Notes      string
	Count      int
}

// Generator produces ad copy variants from product context through the
// selected AI backend.
type Generator struct {
	backend Backend
	fetcher func(ctx context.Context, rawURL string) (string, error)
}

// NewGenerator creates a Generator over the selected backend handle.
func NewGenerator(backend Backend) *Generator {
	return &Generator{
		backend: backend,
		fetcher: func(ctx context.Context, rawURL string) (string, error) {
			return ExtractURLText(ctx, nil, rawURL)
		},
	}
}

// Generate gathers product context and asks the backend for copy variants.
func (g *Generator) Generate(ctx context.Context, req Request) ([]Variant, error) {
	if g.backend == nil {
		return nil, fmt.Errorf("no AI backend configured")
	}
	if req.Count <= 0 {
		req.Count = 3
	}

	var parts []string
	if req.ProductURL != "" {
		text, err := g.fetcher(ctx, req.ProductURL)
		if err != nil {
			return nil, fmt.Errorf("reading product page: %w", err)
		}
		parts = append(parts, "Landing page text:\n"+text)
	}
	if len(req.BriefPDF) > 0 {
		text, err := ExtractPDFText(req.BriefPDF)
		if err != nil {
			return nil, fmt.Errorf("reading product brief: %w", err)
		}
		parts = append(parts, "Product brief:\n"+text)
	}
	if req.Notes != "" {
		parts = append(parts, "Notes:\n"+req.Notes)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no product context: provide a URL, a brief, or notes")
	}

	user := fmt.Sprintf("Write %d ad copy variants.\n\n%s", req.Count, strings.Join(parts, "\n\n"))

	var raw string
	err := g.backend.Acquire(ctx, func(ctx context.Context) error {
		var chatErr error
		raw, chatErr = g.backend.Chat(ctx, systemPrompt, user)
		return chatErr
	})
	if err != nil {
		return nil, fmt.Errorf("generating copy: %w", err)
	}

	var out struct {
		Variants []Variant `json:"variants"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parsing copy response: %w", err)
	}
	if len(out.Variants) == 0 {
		return nil, fmt.Errorf("copy response had no variants")
	}
	return out.Variants, nil
}
