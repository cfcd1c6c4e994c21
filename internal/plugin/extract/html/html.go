package html

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/corval/docqa-service/internal/plugin/extract/plain"
	registryextract "github.com/corval/docqa-service/internal/registry/extract"
)

func init() {
	registryextract.Register(&HTMLExtractor{})
}

// HTMLExtractor extracts readable text from HTML files, preferring a main
// content element over the whole body.
type HTMLExtractor struct{}

func (e *HTMLExtractor) Extensions() []string {
	return []string{".html", ".htm"}
}

var whitespaceRe = regexp.MustCompile(`[ \t]+`)
var blankLinesRe = regexp.MustCompile(`\n{3,}`)

func (e *HTMLExtractor) Extract(name string, data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()

	var content string
	for _, selector := range []string{"main", "article", "#content", ".content"} {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}
	if content == "" {
		content = doc.Text()
	}

	content = whitespaceRe.ReplaceAllString(content, " ")
	content = blankLinesRe.ReplaceAllString(content, "\n\n")
	return plain.Sanitize(strings.TrimSpace(content)), nil
}
