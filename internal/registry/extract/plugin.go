package extract

import (
	"path"
	"strings"
	"sync"
)

// Extractor converts one file format's raw bytes to plain text.
type Extractor interface {
	// Extensions returns the lower-case filename suffixes this extractor
	// handles (e.g. ".html"). The empty string registers a fallback used
	// when no suffix matches.
	Extensions() []string
	// Extract returns the plain text of the file.
	Extract(name string, data []byte) (string, error)
}

var (
	mu         sync.RWMutex
	bySuffix   = map[string]Extractor{}
	fallbackEx Extractor
)

// Register adds an extractor for its declared suffixes. Called from init()
// in plugin packages; a later registration for the same suffix wins.
func Register(e Extractor) {
	mu.Lock()
	defer mu.Unlock()
	for _, ext := range e.Extensions() {
		if ext == "" {
			fallbackEx = e
			continue
		}
		bySuffix[strings.ToLower(ext)] = e
	}
}

// ForFile returns the extractor matching the file's suffix, or the fallback.
// Returns nil if nothing is registered for the suffix and no fallback exists.
func ForFile(name string) Extractor {
	mu.RLock()
	defer mu.RUnlock()
	if e, ok := bySuffix[strings.ToLower(path.Ext(name))]; ok {
		return e
	}
	return fallbackEx
}
