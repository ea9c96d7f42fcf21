package capture

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/techscan/internal/crawler"
)

// interceptors is the union of elements whose referenced resources are
// captured alongside the page.
const interceptors = `link[rel='stylesheet'], script, link[rel='modulepreload']`

// Reference is a resource reference found in page markup.
type Reference struct {
	Kind string
	Ref  string
}

// References lists the stylesheet, script and module preload references of
// body in document order. Elements without the attribute yield an empty Ref.
func References(body []byte) ([]Reference, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page markup: %w", err)
	}
	var refs []Reference
	doc.Find(interceptors).Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) == "script" {
			src, _ := sel.Attr("src")
			refs = append(refs, Reference{Kind: crawler.KindScript, Ref: strings.TrimSpace(src)})
			return
		}
		href, _ := sel.Attr("href")
		kind := crawler.KindStylesheet
		if rel, _ := sel.Attr("rel"); rel == "modulepreload" {
			kind = crawler.KindModulePreload
		}
		refs = append(refs, Reference{Kind: kind, Ref: strings.TrimSpace(href)})
	})
	return refs, nil
}
