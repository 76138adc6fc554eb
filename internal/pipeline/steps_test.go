package pipeline

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/detect"
	"github.com/nao1215/sitemirror/internal/extract"
	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/localpath"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/rewrite"
	"github.com/nao1215/sitemirror/internal/sitemap"
	"github.com/nao1215/sitemirror/internal/storage"
)

const badgeScript = `var h=location.hostname;var a=/\.webflow\.io$/i.test(h);` +
	`if(a){i&&e.remove();}document.querySelector(".w-webflow-badge");`

func webflowSite() http.Handler {
	files := map[string]struct{ contentType, body string }{
		"/": {"text/html", `<html><head><meta name="generator" content="Webflow">` +
			`<link rel="stylesheet" href="/css/site.css"></head>` +
			`<body><a href="/about">About</a><script src="/js/webflow.js"></script></body></html>`},
		"/about":         {"text/html", `<html><body><a href="/">Home</a></body></html>`},
		"/css/site.css":  {"text/css", `body { color: red }`},
		"/js/webflow.js": {"application/javascript", badgeScript},
		"/plain":         {"text/html", `<html><body>hand written</body></html>`},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", f.contentType)
		_, _ = io.WriteString(w, f.body)
	})
}

// mirrorPipeline assembles the steps of a complete run against srv.
func mirrorPipeline(t *testing.T, srv *httptest.Server, seedPath string, detectOpts ...DetectStepOption) (*Pipeline, *model.MirrorReport, string) {
	t.Helper()

	seed, err := model.ParseURL(srv.URL+seedPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out")
	store := storage.New(out)
	logger := discardLogger()

	scope := extract.NewScope(seed)
	c := crawler.New(
		fetcher.NewHTTPFetcher(srv.Client(),
			fetcher.WithRetries(0),
			fetcher.WithRedirectFilter(scope.Mirrorable),
		),
		localpath.NewResolver(),
		store,
		crawler.WithDelay(0),
		crawler.WithScope(scope),
		crawler.WithLogger(logger),
	)

	p := New(WithLogger(logger))
	p.AddSteps(
		NewPrepareStep(store, logger),
		NewCrawlStep(c, seed),
		NewDetectStep(store, append([]DetectStepOption{WithDetectLogger(logger)}, detectOpts...)...),
		NewRewriteStep(store, scope, logger, rewrite.BadgeRule()),
		NewSitemapStep(store),
	)
	return p, model.NewMirrorReport("run", seed.String(), out), out
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestMirrorSteps(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(webflowSite())
	defer srv.Close()

	p, report, out := mirrorPipeline(t, srv, "/")
	if err := p.Execute(t.Context(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Status != model.RunStatusComplete {
		t.Errorf("status = %s", report.Status)
	}
	if report.Platform == nil || !report.Platform.Webflow {
		t.Errorf("platform = %+v", report.Platform)
	}
	if report.Rewritten == 0 {
		t.Error("expected rewritten files")
	}
	if len(report.RewriteErrors) != 0 {
		t.Errorf("rewrite errors: %v", report.RewriteErrors)
	}

	index := readFile(t, out, "index.html")
	for _, want := range []string{`href="css/site.css"`, `href="about/index.html"`, `src="js/webflow.js"`} {
		if !strings.Contains(index, want) {
			t.Errorf("index.html missing %s:\n%s", want, index)
		}
	}
	if about := readFile(t, out, "about/index.html"); !strings.Contains(about, `href="../index.html"`) {
		t.Errorf("about/index.html not localized:\n%s", about)
	}
	script := readFile(t, out, "js/webflow.js")
	if strings.Contains(script, `/\.webflow\.io$/i.test(h)`) || !strings.Contains(script, "if(true){i&&e.remove();") {
		t.Errorf("badge script not neutralized:\n%s", script)
	}

	if report.SitemapPath != filepath.Join(out, sitemap.FileName) {
		t.Errorf("SitemapPath = %q", report.SitemapPath)
	}
	locs, err := sitemap.Parse([]byte(readFile(t, out, sitemap.FileName)))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(locs, srv.URL+"/about") || len(locs) != 2 {
		t.Errorf("sitemap locations = %v", locs)
	}
}

func TestMirrorStepsAreRepeatable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(webflowSite())
	defer srv.Close()

	p, report, out := mirrorPipeline(t, srv, "/")
	if err := p.Execute(t.Context(), report); err != nil {
		t.Fatal(err)
	}
	first := readFile(t, out, "index.html")

	// Rewriting an already localized mirror changes nothing.
	again := NewRewriteStep(storage.New(out), nil, discardLogger(), rewrite.BadgeRule())
	if err := again.Do(t.Context(), report); err != nil {
		t.Fatal(err)
	}
	if report.Rewritten != 0 {
		t.Errorf("second rewrite changed %d files", report.Rewritten)
	}
	if got := readFile(t, out, "index.html"); got != first {
		t.Errorf("index.html changed on second rewrite:\n%s\n---\n%s", first, got)
	}
}

func TestMirrorStepsKeepOffSiteRedirectsRemote(t *testing.T) {
	t.Parallel()

	var elsewhereHits atomic.Int32
	elsewhere := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		elsewhereHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<p>another site</p>`)
	}))
	defer elsewhere.Close()

	home := `<html><body><a href="/go">go</a> <a href="` + elsewhere.URL + `/landing">ext</a></body></html>`
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, home)
	})
	mux.HandleFunc("/go", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, elsewhere.URL+"/landing", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, report, out := mirrorPipeline(t, srv, "/")
	if err := p.Execute(t.Context(), report); err != nil {
		t.Fatal(err)
	}

	if n := elsewhereHits.Load(); n != 0 {
		t.Errorf("off-site host saw %d requests, expected none", n)
	}
	if got := readFile(t, out, "index.html"); got != home {
		t.Errorf("index.html = %s\nwant %s", got, home)
	}
	if _, err := os.Stat(filepath.Join(out, "go")); !os.IsNotExist(err) {
		t.Errorf("nothing may be written for the redirect: %v", err)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Failure != "off-site-redirect" {
		t.Errorf("failures = %+v", failures)
	}
}

func TestDetectStep(t *testing.T) {
	t.Parallel()

	t.Run("non-webflow site warns by default", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(webflowSite())
		defer srv.Close()

		p, report, _ := mirrorPipeline(t, srv, "/plain", WithBadgeWarning(true))
		if err := p.Execute(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Platform == nil || report.Platform.Webflow {
			t.Errorf("platform = %+v", report.Platform)
		}
		if report.SitemapPath == "" {
			t.Error("expected later steps to run")
		}
	})

	t.Run("non-webflow site fails in strict mode", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(webflowSite())
		defer srv.Close()

		p, report, _ := mirrorPipeline(t, srv, "/plain", WithStrict(true))
		err := p.Execute(t.Context(), report)
		if !errors.Is(err, detect.ErrNotWebflow) {
			t.Fatalf("error = %v, want ErrNotWebflow", err)
		}
		if report.Status != model.RunStatusError {
			t.Errorf("status = %s", report.Status)
		}
		if report.Platform == nil || report.Platform.Webflow {
			t.Errorf("platform = %+v, expected the negative detection result", report.Platform)
		}
	})

	t.Run("unreachable seed in strict mode", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(webflowSite())
		defer srv.Close()

		p, report, _ := mirrorPipeline(t, srv, "/missing", WithStrict(true))
		if err := p.Execute(t.Context(), report); !errors.Is(err, ErrSeedNotMirrored) {
			t.Fatalf("error = %v, want ErrSeedNotMirrored", err)
		}
	})

	t.Run("unreachable seed without strict mode", func(t *testing.T) {
		t.Parallel()

		report := model.NewMirrorReport("run", "https://example.webflow.io/", "")
		report.Records = []model.Record{{URL: "https://example.webflow.io/", Kind: model.KindPage, State: model.StateFailed}}
		step := NewDetectStep(storage.New(t.TempDir()), WithDetectLogger(discardLogger()))
		if err := step.Do(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Platform != nil {
			t.Errorf("platform = %+v, want nil", report.Platform)
		}
	})
}

func TestPrepareStep(t *testing.T) {
	t.Parallel()

	t.Run("missing parent", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "no", "such", "out")
		step := NewPrepareStep(storage.New(out), discardLogger())
		if err := step.Do(t.Context(), model.NewMirrorReport("run", "https://example.webflow.io/", out)); !errors.Is(err, storage.ErrParentMissing) {
			t.Errorf("error = %v, want ErrParentMissing", err)
		}
	})

	t.Run("clears stale files", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "out")
		if err := os.MkdirAll(out, 0o750); err != nil {
			t.Fatal(err)
		}
		stale := filepath.Join(out, "stale.html")
		if err := os.WriteFile(stale, []byte("old"), 0o600); err != nil {
			t.Fatal(err)
		}

		report := model.NewMirrorReport("run", "https://example.webflow.io/", "")
		if err := NewPrepareStep(storage.New(out), nil).Do(t.Context(), report); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Errorf("stale file survived: %v", err)
		}
		if report.OutputDir == "" {
			t.Error("expected OutputDir to be set")
		}
	})
}

func TestSitemapStep(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	step := NewSitemapStep(storage.New(out))
	step.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

	report := model.NewMirrorReport("run", "https://example.webflow.io/", out)
	report.Records = []model.Record{
		{URL: "https://example.webflow.io/", Kind: model.KindPage, State: model.StateDone},
		{URL: "https://example.webflow.io/css/site.css", Kind: model.KindStylesheet, State: model.StateDone},
		{URL: "https://example.webflow.io/gone", Kind: model.KindPage, State: model.StateFailed},
	}
	if err := step.Do(t.Context(), report); err != nil {
		t.Fatal(err)
	}
	data := readFile(t, out, sitemap.FileName)
	if !strings.Contains(data, "<lastmod>2026-05-01</lastmod>") {
		t.Errorf("missing lastmod:\n%s", data)
	}
	locs, err := sitemap.Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(locs, []string{"https://example.webflow.io/"}) {
		t.Errorf("locations = %v", locs)
	}
}

func TestErrorList(t *testing.T) {
	t.Parallel()

	joined := errors.Join(errors.New("a"), errors.New("b"))
	if got := errorList(joined); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("errorList(joined) = %v", got)
	}
	if got := errorList(errors.New("single")); !slices.Equal(got, []string{"single"}) {
		t.Errorf("errorList(single) = %v", got)
	}
}
