// Package generation defines the analysis/generation collaborator: it turns
// a post into a structured verdict and, given a strategy, into a reply text.
//
// Backends are chosen once at construction time through the driver registry.
package generation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Mood is the overall tone of an existing discussion.
type Mood string

const (
	MoodCalm     Mood = "calm"
	MoodHeated   Mood = "heated"
	MoodHostile  Mood = "hostile"
	MoodFriendly Mood = "friendly"
)

// AnalyzeRequest is the input to Analyze.
type AnalyzeRequest struct {
	ItemText        string
	ExistingReplies []string
	SourceTitle     string
	Segment         string
}

// Analysis is the structured verdict about one item.
type Analysis struct {
	Topic       string   `json:"topic"`
	Sentiment   string   `json:"sentiment"`
	Relevance   float64  `json:"relevance"`
	Mood        Mood     `json:"mood"`
	Strategy    string   `json:"strategy"`
	ShouldAct   bool     `json:"should_act"`
	AvoidTopics []string `json:"avoid_topics,omitempty"`
	Hook        string   `json:"hook,omitempty"`
}

// GenerateRequest is the input to Generate.
type GenerateRequest struct {
	ItemText        string
	Strategy        string
	Segment         string
	Analysis        *Analysis
	ExistingReplies []string
}

// Client is the capability interface every backend implements. Generate
// returns "" with a nil error when the backend chose to produce nothing.
type Client interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error)
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Factory builds a Client from driver options.
type Factory func(options map[string]string) (Client, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a backend available by name.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if f == nil {
		panic("generation: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("generation: Register called twice for driver " + name)
	}
	drivers[name] = f
}

// Open builds the named backend.
func Open(name string, options map[string]string) (Client, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("generation: unknown driver %q (registered: %v)", name, Drivers())
	}
	return f(options)
}

// Drivers returns the sorted names of registered backends.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
