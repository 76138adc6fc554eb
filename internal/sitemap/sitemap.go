// Package sitemap writes a sitemaps.org urlset for a mirrored site.
package sitemap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/sitemirror/internal/storage"
)

// FileName is the sitemap's name in the output root.
const FileName = "sitemap.xml"

// Namespace is the sitemaps.org protocol namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []entry  `xml:"url"`
}

type entry struct {
	Location string `xml:"loc"`
	LastMod  string `xml:"lastmod,omitempty"`
}

// Encode renders the sitemap for pages, sorted and deduplicated, with
// every lastmod set to the date of modified.
func Encode(pages []string, modified time.Time) ([]byte, error) {
	sorted := slices.Clone(pages)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	set := urlSet{XMLNS: Namespace, URLs: make([]entry, 0, len(sorted))}
	lastmod := ""
	if !modified.IsZero() {
		lastmod = modified.Format(time.DateOnly)
	}
	for _, p := range sorted {
		set.URLs = append(set.URLs, entry{Location: p, LastMod: lastmod})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return nil, fmt.Errorf("encode sitemap: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Write encodes the sitemap and stores it as FileName in store.
func Write(store *storage.Store, pages []string, modified time.Time) (string, error) {
	data, err := Encode(pages, modified)
	if err != nil {
		return "", err
	}
	if err := store.Write(FileName, data); err != nil {
		return "", fmt.Errorf("write sitemap: %w", err)
	}
	return store.Path(FileName), nil
}

// Parse reads the page locations back from a sitemap.
func Parse(data []byte) ([]string, error) {
	var set urlSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		locs = append(locs, u.Location)
	}
	return locs, nil
}
