package plain

import (
	"strings"
	"unicode/utf8"

	registryextract "github.com/corval/docqa-service/internal/registry/extract"
)

func init() {
	registryextract.Register(&PlainExtractor{})
}

// PlainExtractor treats file bytes as UTF-8 text, dropping invalid byte
// sequences. It is also the fallback for unrecognized suffixes.
type PlainExtractor struct{}

func (e *PlainExtractor) Extensions() []string {
	return []string{".txt", ".md", ".csv", ".log", ""}
}

func (e *PlainExtractor) Extract(name string, data []byte) (string, error) {
	return Sanitize(string(data)), nil
}

// Sanitize strips invalid UTF-8 byte sequences and NUL bytes, which Postgres
// rejects in text columns.
func Sanitize(s string) string {
	if utf8.ValidString(s) {
		return strings.ReplaceAll(s, "\x00", "")
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		if r == 0 {
			continue
		}
		v = append(v, r)
	}
	return string(v)
}
