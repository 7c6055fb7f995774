package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var snippetPolicy = bluemonday.StrictPolicy()

// HTMLToText strips markup from a snippet and collapses whitespace. Plain
// text passes through untouched apart from whitespace cleanup.
func HTMLToText(html string) string {
	if !strings.ContainsAny(html, "<>") {
		return cleanText(html)
	}

	// Break tag boundaries apart so adjacent elements don't fuse words
	// once the tags are stripped.
	spaced := strings.ReplaceAll(html, "><", "> <")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippetPolicy.Sanitize(spaced)))
	if err != nil {
		return cleanText(html)
	}
	return cleanText(doc.Text())
}
