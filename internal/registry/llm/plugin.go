package llm

import (
	"context"
	"fmt"
)

// ChatModel generates a free-text answer from a fully rendered prompt.
type ChatModel interface {
	// Complete sends the prompt and returns the model's text response.
	// Provider failures are returned as *UpstreamError.
	Complete(ctx context.Context, prompt string) (string, error)
	// ModelName returns the model identifier used for completion.
	ModelName() string
}

// UpstreamError wraps a chat provider failure with the provider name so the
// HTTP boundary can translate it without inspecting error shapes.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Loader creates a ChatModel from config.
type Loader func(ctx context.Context) (ChatModel, error)

// Plugin represents a chat model plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a chat model plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered chat model plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named chat model plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown chat model %q; valid: %v", name, Names())
}
