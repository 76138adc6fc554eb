package extract

import (
	"bytes"
	"cmp"
	"iter"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/sitemirror/internal/model"
)

// Span locates one reference inside a document.
//
// Start and End are byte offsets into the scanned content; the reference
// text is content[Start:End] with surrounding quotes excluded. Escaped is
// true for HTML attribute values, whose text may contain character
// references such as &amp; and must be unescaped before use.
type Span struct {
	Start   int
	End     int
	Hint    model.Hint
	Escaped bool
}

// Text returns the raw reference text of the span.
func (s Span) Text(content []byte) string {
	return string(content[s.Start:s.End])
}

// Value returns the reference text with HTML escaping removed.
func (s Span) Value(content []byte) string {
	raw := s.Text(content)
	if s.Escaped {
		return html.UnescapeString(raw)
	}
	return raw
}

// Scan returns the reference spans of content interpreted as kind.
// Kinds that are not parsed yield nothing.
func Scan(content []byte, kind model.Kind) iter.Seq[Span] {
	switch kind {
	case model.KindPage:
		return ScanHTML(content)
	case model.KindStylesheet:
		return ScanCSS(content)
	case model.KindScript:
		return ScanScript(content)
	default:
		return func(func(Span) bool) {}
	}
}

var (
	// attrPattern finds name=value pairs inside a raw start tag.
	attrPattern = regexp.MustCompile("\\s([a-zA-Z_:][-a-zA-Z0-9_:.]*)\\s*=\\s*(\"[^\"]*\"|'[^']*'|[^\\s\"'=<>`]+)")

	// cssURLPattern finds url(...) references.
	cssURLPattern = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]+))\s*\)`)

	// cssImportPattern finds @import "..." references that do not use url().
	cssImportPattern = regexp.MustCompile(`(?i)@import\s+(?:"([^"]*)"|'([^']*)')`)

	// scriptURLPattern finds quoted absolute URLs and quoted root-relative
	// asset paths inside scripts.
	scriptURLPattern = regexp.MustCompile(`["']((?:https?:)?//[^"'\s\\<>]+|/[A-Za-z0-9_\-./%]+\.(?:css|js|png|jpe?g|gif|svg|webp|avif|ico|mp4|webm|mp3|woff2?|ttf|otf))["']`)
)

// ScanHTML returns the reference spans of an HTML document in document
// order: markup attributes, srcset candidates, style attributes, <style>
// blocks and inline scripts.
//
// The tokenizer is lenient, so malformed markup yields whatever could be
// recognized and never an error.
func ScanHTML(content []byte) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		z := html.NewTokenizer(bytes.NewReader(content))
		offset := 0
		var rawText atom.Atom
		scriptIsJS := false

		for {
			tt := z.Next()
			if tt == html.ErrorToken {
				return
			}
			start := offset
			offset += len(z.Raw())
			if offset > len(content) {
				return
			}

			switch tt {
			case html.StartTagToken, html.SelfClosingTagToken:
				name, hasAttr := z.TagName()
				tag := atom.Lookup(name)
				attrs := make(map[string]string)
				for hasAttr {
					var k, v []byte
					k, v, hasAttr = z.TagAttr()
					key := strings.ToLower(string(k))
					if _, dup := attrs[key]; !dup {
						attrs[key] = string(v)
					}
				}
				if !tagSpans(content[start:offset], start, tag, attrs, yield) {
					return
				}
				if tt == html.StartTagToken && (tag == atom.Style || tag == atom.Script) {
					rawText = tag
					scriptIsJS = tag == atom.Script && isJavaScriptType(attrs["type"]) && attrs["src"] == ""
				}
			case html.TextToken:
				var inner iter.Seq[Span]
				switch {
				case rawText == atom.Style:
					inner = ScanCSS(content[start:offset])
				case rawText == atom.Script && scriptIsJS:
					inner = ScanScript(content[start:offset])
				default:
					continue
				}
				for sp := range inner {
					sp.Start += start
					sp.End += start
					if !yield(sp) {
						return
					}
				}
			case html.EndTagToken:
				rawText = 0
				scriptIsJS = false
			}
		}
	}
}

// valueMode is how an attribute value carries references.
type valueMode int

const (
	modeURL valueMode = iota
	modeSrcset
	modeStyle
)

// tagSpans yields the spans of one start tag. raw is the tag's source text
// and base its offset in the document.
func tagSpans(raw []byte, base int, tag atom.Atom, attrs map[string]string, yield func(Span) bool) bool {
	for _, m := range attrPattern.FindAllSubmatchIndex(raw, -1) {
		name := strings.ToLower(string(raw[m[2]:m[3]]))
		hint, mode, ok := attributeHint(tag, name, attrs)
		if !ok {
			continue
		}

		vs, ve := m[4], m[5]
		if q := raw[vs]; q == '"' || q == '\'' {
			vs++
			ve--
		}
		if vs >= ve {
			continue
		}

		var spans iter.Seq[Span]
		switch mode {
		case modeSrcset:
			spans = srcsetSpans(raw[vs:ve], hint)
		case modeStyle:
			spans = ScanCSS(raw[vs:ve])
		default:
			spans = func(yield func(Span) bool) {
				yield(Span{Start: 0, End: ve - vs, Hint: hint})
			}
		}
		for sp := range spans {
			sp.Start += base + vs
			sp.End += base + vs
			sp.Escaped = true
			if !yield(sp) {
				return false
			}
		}
	}
	return true
}

// attributeHint decides whether attribute name of tag holds a reference.
func attributeHint(tag atom.Atom, name string, attrs map[string]string) (model.Hint, valueMode, bool) {
	if name == "style" {
		return model.HintCSSURL, modeStyle, true
	}

	switch tag {
	case atom.A, atom.Area:
		if name == "href" {
			return model.HintAnchor, modeURL, true
		}
	case atom.Base:
		if name == "href" {
			return model.HintBase, modeURL, true
		}
	case atom.Link:
		if name == "href" {
			return linkHint(attrs), modeURL, true
		}
		if name == "imagesrcset" {
			return model.HintImage, modeSrcset, true
		}
	case atom.Script:
		if name == "src" {
			return model.HintScript, modeURL, true
		}
	case atom.Img:
		switch name {
		case "src", "data-src":
			return model.HintImage, modeURL, true
		case "srcset", "data-srcset":
			return model.HintImage, modeSrcset, true
		}
	case atom.Source:
		switch name {
		case "srcset":
			return model.HintImage, modeSrcset, true
		case "src":
			if strings.HasPrefix(strings.ToLower(attrs["type"]), "image/") {
				return model.HintImage, modeURL, true
			}
			return model.HintMedia, modeURL, true
		}
	case atom.Video:
		switch name {
		case "src":
			return model.HintMedia, modeURL, true
		case "poster":
			return model.HintImage, modeURL, true
		}
	case atom.Audio, atom.Embed:
		if name == "src" {
			return model.HintMedia, modeURL, true
		}
	case atom.Track, atom.Object:
		if name == "src" || name == "data" {
			return model.HintNone, modeURL, true
		}
	case atom.Iframe, atom.Frame:
		if name == "src" {
			return model.HintFrame, modeURL, true
		}
	case atom.Input:
		if name == "src" && strings.EqualFold(attrs["type"], "image") {
			return model.HintImage, modeURL, true
		}
	case atom.Meta:
		if name == "content" {
			return metaHint(attrs)
		}
	}
	return model.HintNone, modeURL, false
}

// linkHint classifies a <link href> by its rel and as attributes.
func linkHint(attrs map[string]string) model.Hint {
	rels := strings.Fields(strings.ToLower(attrs["rel"]))
	for _, rel := range rels {
		switch rel {
		case "stylesheet":
			return model.HintStylesheet
		case "icon", "apple-touch-icon", "apple-touch-icon-precomposed", "mask-icon":
			return model.HintIcon
		case "preload", "prefetch", "modulepreload":
			switch strings.ToLower(attrs["as"]) {
			case "style":
				return model.HintStylesheet
			case "script":
				return model.HintScript
			case "image":
				return model.HintImage
			case "video", "audio":
				return model.HintMedia
			}
			if rel == "modulepreload" {
				return model.HintScript
			}
		}
	}
	return model.HintNone
}

// metaHint recognizes social preview images in <meta content>.
func metaHint(attrs map[string]string) (model.Hint, valueMode, bool) {
	key := strings.ToLower(attrs["property"])
	if key == "" {
		key = strings.ToLower(attrs["name"])
	}
	switch key {
	case "og:image", "og:image:url", "og:image:secure_url", "twitter:image", "twitter:image:src", "msapplication-tileimage":
		return model.HintImage, modeURL, true
	case "og:video", "og:video:url", "og:video:secure_url", "og:audio":
		return model.HintMedia, modeURL, true
	}
	return model.HintNone, modeURL, false
}

// srcsetSpans yields the URL of each candidate in a srcset value.
// Candidates are "url [descriptor]" separated by commas.
func srcsetSpans(value []byte, hint model.Hint) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		i := 0
		for i < len(value) {
			for i < len(value) && (isSpace(value[i]) || value[i] == ',') {
				i++
			}
			start := i
			for i < len(value) && !isSpace(value[i]) {
				i++
			}
			end := i
			// A trailing comma directly after the URL ends the candidate.
			for end > start && value[end-1] == ',' {
				end--
			}
			if end > start {
				if !yield(Span{Start: start, End: end, Hint: hint}) {
					return
				}
			}
			for i < len(value) && value[i] != ',' {
				i++
			}
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

// isJavaScriptType reports whether a <script type> denotes executable script.
func isJavaScriptType(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	return t == "" || t == "module" || strings.Contains(t, "javascript") || strings.Contains(t, "ecmascript")
}

// ScanCSS returns the url() and @import spans of a stylesheet in order.
func ScanCSS(content []byte) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		var spans []Span
		for _, m := range cssURLPattern.FindAllSubmatchIndex(content, -1) {
			hint := model.HintCSSURL
			if isImport(content[:m[0]]) {
				hint = model.HintCSSImport
			}
			if sp, ok := firstGroup(m, hint); ok {
				spans = append(spans, sp)
			}
		}
		for _, m := range cssImportPattern.FindAllSubmatchIndex(content, -1) {
			if sp, ok := firstGroup(m, model.HintCSSImport); ok {
				spans = append(spans, sp)
			}
		}
		slices.SortFunc(spans, func(a, b Span) int {
			return cmp.Compare(a.Start, b.Start)
		})
		for _, sp := range spans {
			if !yield(sp) {
				return
			}
		}
	}
}

// isImport reports whether the text before a url() match ends in @import.
func isImport(before []byte) bool {
	trimmed := bytes.TrimRight(before, " \t\r\n")
	return len(trimmed) >= len("@import") &&
		strings.EqualFold(string(trimmed[len(trimmed)-len("@import"):]), "@import")
}

// ScanScript returns quoted URL literal spans of a script in order.
func ScanScript(content []byte) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		for _, m := range scriptURLPattern.FindAllSubmatchIndex(content, -1) {
			if !yield(Span{Start: m[2], End: m[3], Hint: model.HintScriptURL}) {
				return
			}
		}
	}
}

// firstGroup returns the first non-empty capture group of a match.
func firstGroup(m []int, hint model.Hint) (Span, bool) {
	for g := 2; g+1 < len(m); g += 2 {
		if m[g] >= 0 && m[g+1] > m[g] {
			return Span{Start: m[g], End: m[g+1], Hint: hint}, true
		}
	}
	return Span{}, false
}
