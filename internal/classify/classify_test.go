package classify

import (
	"net/url"
	"testing"

	"github.com/nao1215/sitemirror/internal/model"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		contentType string
		hint        model.Hint
		want        model.Kind
	}{
		{"img context wins over missing extension", "https://example.com/photo", "", model.HintImage, model.KindImage},
		{"img context wins over wrong content type", "https://example.com/photo", "text/html", model.HintImage, model.KindImage},
		{"stylesheet link", "https://example.com/styles?v=3", "", model.HintStylesheet, model.KindStylesheet},
		{"css import", "https://example.com/more.css", "", model.HintCSSImport, model.KindStylesheet},
		{"script tag", "https://example.com/app", "text/plain", model.HintScript, model.KindScript},
		{"video source", "https://example.com/clip", "", model.HintMedia, model.KindMedia},
		{"favicon", "https://example.com/favicon.ico", "", model.HintIcon, model.KindImage},
		{"anchor to page", "https://example.com/about", "", model.HintAnchor, model.KindPage},
		{"anchor to image by extension", "https://example.com/big.JPG", "", model.HintAnchor, model.KindImage},
		{"anchor corrected by content type", "https://example.com/download", "application/pdf", model.HintAnchor, model.KindUnknown},
		{"anchor with unrecognized content type", "https://example.com/report", "application/vnd.ms-excel", model.HintAnchor, model.KindUnknown},
		{"html content type", "https://example.com/x", "text/html; charset=utf-8", model.HintNone, model.KindPage},
		{"javascript content type", "https://example.com/x", "application/javascript", model.HintNone, model.KindScript},
		{"css content type", "https://example.com/x", "text/css", model.HintNone, model.KindStylesheet},
		{"audio content type", "https://example.com/x", "audio/mpeg", model.HintNone, model.KindMedia},
		{"octet stream falls back to extension", "https://example.com/a.png", "application/octet-stream", model.HintNone, model.KindImage},
		{"font by extension", "https://example.com/f.woff2", "", model.HintCSSURL, model.KindUnknown},
		{"css url without extension", "https://example.com/bg", "", model.HintCSSURL, model.KindImage},
		{"seed page", "https://example.com/", "", model.HintSeed, model.KindPage},
		{"no context no clue", "https://example.com/thing", "", model.HintNone, model.KindUnknown},
		{"script url to json", "https://example.com/data.json", "", model.HintScriptURL, model.KindUnknown},
		{"malformed content type", "https://example.com/x", "text/css;;;", model.HintNone, model.KindStylesheet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := url.Parse(tt.url)
			if err != nil {
				t.Fatal(err)
			}
			if got := Classify(u, tt.contentType, tt.hint); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOnlyRecursableKindsAreParsed(t *testing.T) {
	t.Parallel()

	u, _ := url.Parse("https://example.com/logo.png")
	if Classify(u, "", model.HintNone).Recursable() {
		t.Error("images must not be passed to the link extractor")
	}
	u, _ = url.Parse("https://example.com/site.css")
	if !Classify(u, "", model.HintNone).Recursable() {
		t.Error("stylesheets must be passed to the link extractor")
	}
}
