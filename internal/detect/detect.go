// Package detect recognizes the site builder behind a mirrored page.
package detect

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/sitemirror/internal/model"
)

// ErrNotWebflow is returned by Require when a page carries no Webflow
// indicator.
var ErrNotWebflow = errors.New("no Webflow indicators found (website-files.com links or scripts, Webflow meta generator)")

// Indicator names recorded in model.Platform.
const (
	IndicatorLinks     = "website-files.com links"
	IndicatorScripts   = "website-files.com scripts"
	IndicatorGenerator = "Webflow meta generator"
	IndicatorDataSite  = "data-wf-site attribute"
)

// assetHost is the CDN every published Webflow site loads its assets from.
const assetHost = "website-files.com"

// Webflow inspects an HTML document for signs that it was published by
// Webflow.
func Webflow(page []byte) (*model.Platform, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	p := &model.Platform{}

	if anyAttrContains(doc.Find("link[href]"), "href", assetHost) {
		p.Indicators = append(p.Indicators, IndicatorLinks)
	}
	if anyAttrContains(doc.Find("script[src]"), "src", assetHost) {
		p.Indicators = append(p.Indicators, IndicatorScripts)
	}

	p.Generator = generatorOf(doc)
	if strings.Contains(strings.ToLower(p.Generator), "webflow") {
		p.Indicators = append(p.Indicators, IndicatorGenerator)
	}

	if doc.Find("html[data-wf-site]").Length() > 0 {
		p.Indicators = append(p.Indicators, IndicatorDataSite)
	}

	p.Webflow = len(p.Indicators) > 0
	return p, nil
}

// Require is Webflow but fails with ErrNotWebflow when nothing was found.
func Require(page []byte) (*model.Platform, error) {
	p, err := Webflow(page)
	if err != nil {
		return nil, err
	}
	if !p.Webflow {
		return p, ErrNotWebflow
	}
	return p, nil
}

func anyAttrContains(sel *goquery.Selection, attr, needle string) bool {
	found := false
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr(attr)
		if strings.Contains(strings.ToLower(v), needle) {
			found = true
			return false
		}
		return true
	})
	return found
}

func generatorOf(doc *goquery.Document) string {
	var generator string
	doc.Find("meta[name][content]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if name, _ := s.Attr("name"); !strings.EqualFold(strings.TrimSpace(name), "generator") {
			return true
		}
		generator, _ = s.Attr("content")
		return false
	})
	return strings.TrimSpace(generator)
}
