package filestore

import (
	"context"
	"fmt"

	"github.com/corval/docqa-service/internal/model"
)

// FileStore is the external file-storage provider: file discovery, content
// download, and time-limited download links.
type FileStore interface {
	// ListPage lists files under the configured root. Pass an empty cursor
	// for the first page; an empty returned cursor means the listing is
	// complete.
	ListPage(ctx context.Context, cursor string) (files []model.FileInfo, next string, err error)
	// Download returns the raw bytes of the file at path.
	Download(ctx context.Context, path string) ([]byte, error)
	// TemporaryLink returns a short-lived direct download URL for path.
	TemporaryLink(ctx context.Context, path string) (string, error)
}

// Loader creates a FileStore from config.
type Loader func(ctx context.Context) (FileStore, error)

// Plugin represents a file store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a file store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered file store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named file store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown file store %q; valid: %v", name, Names())
}
