// Package classify tags discovered references with a resource kind.
package classify

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/nao1215/sitemirror/internal/model"
)

// extensionKinds maps lowercase file extensions to kinds.
// Extensions that map to KindUnknown are known binaries (fonts, documents)
// that must never be mistaken for pages.
var extensionKinds = map[string]model.Kind{
	".html":  model.KindPage,
	".htm":   model.KindPage,
	".xhtml": model.KindPage,

	".css": model.KindStylesheet,

	".js":  model.KindScript,
	".mjs": model.KindScript,

	".png":  model.KindImage,
	".jpg":  model.KindImage,
	".jpeg": model.KindImage,
	".gif":  model.KindImage,
	".svg":  model.KindImage,
	".webp": model.KindImage,
	".avif": model.KindImage,
	".ico":  model.KindImage,
	".bmp":  model.KindImage,
	".tif":  model.KindImage,
	".tiff": model.KindImage,

	".mp4":  model.KindMedia,
	".webm": model.KindMedia,
	".ogg":  model.KindMedia,
	".ogv":  model.KindMedia,
	".mov":  model.KindMedia,
	".m4v":  model.KindMedia,
	".mp3":  model.KindMedia,
	".wav":  model.KindMedia,
	".m4a":  model.KindMedia,
	".aac":  model.KindMedia,
	".flac": model.KindMedia,

	".woff":   model.KindUnknown,
	".woff2":  model.KindUnknown,
	".ttf":    model.KindUnknown,
	".otf":    model.KindUnknown,
	".eot":    model.KindUnknown,
	".pdf":    model.KindUnknown,
	".zip":    model.KindUnknown,
	".json":   model.KindUnknown,
	".xml":    model.KindUnknown,
	".txt":    model.KindUnknown,
	".lottie": model.KindUnknown,
}

// Classify returns the kind of the resource at u.
//
// contentType is the server-declared Content-Type and may be empty (at
// discovery time) or wrong. hint is the markup context the reference was
// found in. The decision order is:
//
//  1. a hint that names an asset type (an <img> is an image, a
//     <link rel="stylesheet"> is a stylesheet);
//  2. a recognized content type;
//  3. a recognized file extension;
//  4. a declared but unrecognized content type is unknown;
//  5. navigational hints are pages;
//  6. everything else is unknown.
func Classify(u *url.URL, contentType string, hint model.Hint) model.Kind {
	if kind, ok := fromHint(hint); ok {
		return kind
	}
	if kind, ok := FromContentType(contentType); ok {
		return kind
	}

	ext := extension(u)
	if kind, ok := extensionKinds[ext]; ok {
		return kind
	}

	if contentType != "" {
		return model.KindUnknown
	}

	switch hint {
	case model.HintSeed, model.HintAnchor, model.HintFrame:
		return model.KindPage
	case model.HintCSSURL:
		// url() without a known extension is almost always an image.
		if ext == "" {
			return model.KindImage
		}
	}
	return model.KindUnknown
}

func fromHint(hint model.Hint) (model.Kind, bool) {
	switch hint {
	case model.HintStylesheet, model.HintCSSImport:
		return model.KindStylesheet, true
	case model.HintScript:
		return model.KindScript, true
	case model.HintImage, model.HintIcon:
		return model.KindImage, true
	case model.HintMedia:
		return model.KindMedia, true
	}
	return model.KindUnknown, false
}

// FromContentType maps a Content-Type header value to a kind.
// It reports false for empty, unparseable or non-specific types such as
// application/octet-stream.
func FromContentType(contentType string) (model.Kind, bool) {
	if contentType == "" {
		return model.KindUnknown, false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return model.KindPage, true
	case mediaType == "text/css":
		return model.KindStylesheet, true
	case strings.Contains(mediaType, "javascript") || strings.Contains(mediaType, "ecmascript"):
		return model.KindScript, true
	case strings.HasPrefix(mediaType, "image/"):
		return model.KindImage, true
	case strings.HasPrefix(mediaType, "video/") || strings.HasPrefix(mediaType, "audio/"):
		return model.KindMedia, true
	case strings.HasPrefix(mediaType, "font/"), mediaType == "application/pdf":
		return model.KindUnknown, true
	}
	return model.KindUnknown, false
}

func extension(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(path.Ext(path.Base(u.Path)))
}
