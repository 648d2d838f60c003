// Package generationtest provides a scripted generation.Client for tests.
package generationtest

import (
	"context"
	"strings"
	"sync"

	"github.com/ignite/engagement-engine/internal/generation"
)

// Client returns the configured verdict for every item unless a per-text
// override matches (substring match on the item text).
type Client struct {
	mu sync.Mutex

	Default   generation.Analysis
	Overrides map[string]generation.Analysis

	// Reply is returned by Generate; Empty makes Generate return "".
	Reply     string
	Empty     bool
	GenErr    error
	AnaErr    error
	Analyzed  []generation.AnalyzeRequest
	Generated []generation.GenerateRequest
}

// New returns a client that approves everything with relevance 0.9.
func New() *Client {
	return &Client{
		Default: generation.Analysis{
			Topic:     "general",
			Sentiment: "neutral",
			Relevance: 0.9,
			Mood:      generation.MoodCalm,
			Strategy:  "analytical",
			ShouldAct: true,
		},
		Overrides: make(map[string]generation.Analysis),
		Reply:     "interesting point",
	}
}

// Analyze implements generation.Client.
func (c *Client) Analyze(ctx context.Context, req generation.AnalyzeRequest) (*generation.Analysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Analyzed = append(c.Analyzed, req)
	if c.AnaErr != nil {
		return nil, c.AnaErr
	}
	for needle, a := range c.Overrides {
		if strings.Contains(req.ItemText, needle) {
			out := a
			return &out, nil
		}
	}
	out := c.Default
	return &out, nil
}

// Generate implements generation.Client.
func (c *Client) Generate(ctx context.Context, req generation.GenerateRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Generated = append(c.Generated, req)
	if c.GenErr != nil {
		return "", c.GenErr
	}
	if c.Empty {
		return "", nil
	}
	return c.Reply, nil
}

// Generations returns the recorded Generate requests.
func (c *Client) Generations() []generation.GenerateRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]generation.GenerateRequest, len(c.Generated))
	copy(out, c.Generated)
	return out
}
