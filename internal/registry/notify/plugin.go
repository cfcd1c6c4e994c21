package notify

import (
	"context"
	"fmt"
)

// Message is one outbound notification. The core decides that a notification
// must be sent and with what content; delivery is the plugin's problem.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Notifier delivers notifications to administrators.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Loader creates a Notifier from config.
type Loader func(ctx context.Context) (Notifier, error)

// Plugin represents a notifier plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a notifier plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered notifier plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named notifier plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown notifier %q; valid: %v", name, Names())
}
