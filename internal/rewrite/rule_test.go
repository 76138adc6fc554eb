package rewrite

import (
	"testing"

	"github.com/nao1215/sitemirror/internal/model"
)

func TestBadgeRule(t *testing.T) {
	t.Parallel()

	const script = `!function(){var e=document.createElement("a");e.className="w-webflow-badge";` +
		`var h=location.hostname;if(/\.webflow\.io$/i.test(h)){show(e)}` +
		`if(a){i&&e.remove();}else{keep()}}();`
	const want = `!function(){var e=document.createElement("a");e.className="w-webflow-badge";` +
		`var h=location.hostname;if(false){show(e)}` +
		`if(true){i&&e.remove();}else{keep()}}();`

	tests := []struct {
		name  string
		kind  model.Kind
		input string
		want  string
	}{
		{name: "badge script", kind: model.KindScript, input: script, want: want},
		{
			name:  "script without guard is untouched",
			kind:  model.KindScript,
			input: `if(/\.webflow\.io$/i.test(h)){x()}`,
			want:  `if(/\.webflow\.io$/i.test(h)){x()}`,
		},
		{name: "pages are untouched", kind: model.KindPage, input: script, want: script},
		{name: "empty", kind: model.KindScript, input: "", want: ""},
	}

	rule := BadgeRule()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := string(rule.Apply(tt.kind, []byte(tt.input))); got != tt.want {
				t.Errorf("Apply() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestReplaceRule(t *testing.T) {
	t.Parallel()

	rule := NewReplaceRule("test", []model.Kind{model.KindStylesheet, model.KindPage}, "",
		Replacement{Old: "red", New: "blue"},
		Replacement{Old: "", New: "ignored"},
	)
	if rule.Name() != "test" {
		t.Errorf("Name() = %q", rule.Name())
	}
	if got := string(rule.Apply(model.KindStylesheet, []byte("a{color:red}b{color:red}"))); got != "a{color:blue}b{color:blue}" {
		t.Errorf("Apply() = %q", got)
	}
	if got := string(rule.Apply(model.KindScript, []byte("red"))); got != "red" {
		t.Errorf("Apply() on other kind = %q", got)
	}
}
