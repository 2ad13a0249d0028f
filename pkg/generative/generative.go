// Package generative defines the text-completion contract the
// reconciliation engine drives: one prompt in, one text response out.
package generative

import (
	"context"
	"sync"
)

// Request is a single completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// Temperature is left to the provider default when nil.
	Temperature *float64
}

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Response is the raw completion. Nothing about its shape is guaranteed.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Generator produces completions.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function into a Generator.
type Func func(ctx context.Context, req Request) (Response, error)

// Name implements Generator.
func (f Func) Name() string { return "func" }

// Generate implements Generator.
func (f Func) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Step is one scripted outcome.
type Step struct {
	Response Response
	Err      error
}

// Script is a Generator that replays steps in order and records requests.
// Once the steps run out the last one repeats.
type Script struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScript returns a Script replaying steps.
func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Reply is shorthand for a Script that always answers text.
func Reply(text string, tokens int64) *Script {
	return NewScript(Step{Response: Response{Text: text, Model: "script", Usage: Usage{OutputTokens: tokens}}})
}

// Name implements Generator.
func (s *Script) Name() string { return "script" }

// Generate implements Generator.
func (s *Script) Generate(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if len(s.steps) == 0 {
		return Response{}, nil
	}
	i := min(len(s.requests)-1, len(s.steps)-1)
	return s.steps[i].Response, s.steps[i].Err
}

// Calls returns how many times Generate ran.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of the recorded requests.
func (s *Script) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
