package model

import (
	"fmt"
	"strings"
)

// Kind is the classification of a mirrored resource.
// It decides where the resource lands on disk and whether its content
// is parsed for further references.
type Kind int

const (
	// KindUnknown is a resource that could not be classified.
	// Fonts, documents and other binaries end up here and are copied verbatim.
	KindUnknown Kind = iota
	// KindPage is an HTML document.
	KindPage
	// KindStylesheet is a CSS file.
	KindStylesheet
	// KindScript is a JavaScript file.
	KindScript
	// KindImage is a raster or vector image.
	KindImage
	// KindMedia is an audio or video file.
	KindMedia
)

// kindNames maps each Kind to its stable text form.
// The text form is persisted in the history database and JSON reports.
var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindPage:       "page",
	KindStylesheet: "stylesheet",
	KindScript:     "script",
	KindImage:      "image",
	KindMedia:      "media",
}

// Kinds returns every Kind in display order.
func Kinds() []Kind {
	return []Kind{KindPage, KindStylesheet, KindScript, KindImage, KindMedia, KindUnknown}
}

// String returns the text form of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Recursable reports whether content of this kind is parsed for references.
func (k Kind) Recursable() bool {
	return k == KindPage || k == KindStylesheet || k == KindScript
}

// IsAsset reports whether the kind is anything other than a page.
func (k Kind) IsAsset() bool {
	return k != KindPage
}

// Dir returns the output subdirectory used for assets of this kind.
// Pages are mirrored at the output root and return an empty string.
func (k Kind) Dir() string {
	switch k {
	case KindPage:
		return ""
	case KindStylesheet:
		return "css"
	case KindScript:
		return "js"
	case KindImage:
		return "images"
	case KindMedia:
		return "media"
	default:
		return "assets"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind converts the text form of a kind back into a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Hint describes the markup context a reference was discovered in.
// The classifier trusts strong hints over file extensions and content types,
// so an <img src="/photo"> is an image even without an extension.
type Hint int

const (
	// HintNone means the context carries no information.
	HintNone Hint = iota
	// HintSeed marks the start URL of a crawl.
	HintSeed
	// HintAnchor is an <a href> or <area href> link.
	HintAnchor
	// HintFrame is an <iframe src> or <frame src>.
	HintFrame
	// HintStylesheet is a <link rel="stylesheet"> or preload as=style.
	HintStylesheet
	// HintScript is a <script src> or preload as=script.
	HintScript
	// HintImage is an <img>, <picture> source, poster or og:image.
	HintImage
	// HintIcon is a favicon or touch icon link.
	HintIcon
	// HintMedia is an <audio>, <video> or <embed> source.
	HintMedia
	// HintBase is the <base href> of a document.
	HintBase
	// HintCSSImport is an @import inside a stylesheet.
	HintCSSImport
	// HintCSSURL is a url() inside a stylesheet or style attribute.
	HintCSSURL
	// HintScriptURL is a quoted URL literal inside a script.
	HintScriptURL
)

var hintNames = map[Hint]string{
	HintNone:       "none",
	HintSeed:       "seed",
	HintAnchor:     "anchor",
	HintFrame:      "frame",
	HintStylesheet: "stylesheet",
	HintScript:     "script",
	HintImage:      "image",
	HintIcon:       "icon",
	HintMedia:      "media",
	HintBase:       "base",
	HintCSSImport:  "css-import",
	HintCSSURL:     "css-url",
	HintScriptURL:  "script-url",
}

// String returns the text form of the hint.
func (h Hint) String() string {
	if name, ok := hintNames[h]; ok {
		return name
	}
	return fmt.Sprintf("hint(%d)", int(h))
}

// Navigational reports whether the hint denotes a link a user follows
// (as opposed to a resource the browser loads for rendering).
func (h Hint) Navigational() bool {
	return h == HintSeed || h == HintAnchor || h == HintFrame
}
