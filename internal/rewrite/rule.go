package rewrite

import (
	"bytes"
	"slices"

	"github.com/nao1215/sitemirror/internal/model"
)

// Rule is a content transform applied to a mirrored file before its
// references are localized. Rules must be pure: the same input always
// yields the same output, and unmatched bytes are left untouched.
type Rule interface {
	// Name identifies the rule in logs.
	Name() string

	// Apply returns the transformed content. It may return content itself
	// when nothing matched.
	Apply(kind model.Kind, content []byte) []byte
}

// Replacement is one literal substitution.
type Replacement struct {
	Old string
	New string
}

// ReplaceRule substitutes literal strings in files of the given kinds,
// optionally only when the file contains a guard string.
type ReplaceRule struct {
	name         string
	kinds        []model.Kind
	guard        []byte
	replacements []Replacement
}

// NewReplaceRule creates a ReplaceRule. An empty guard applies the rule
// to every file of a matching kind.
func NewReplaceRule(name string, kinds []model.Kind, guard string, replacements ...Replacement) *ReplaceRule {
	return &ReplaceRule{
		name:         name,
		kinds:        kinds,
		guard:        []byte(guard),
		replacements: replacements,
	}
}

// Name implements Rule.
func (r *ReplaceRule) Name() string {
	return r.name
}

// Apply implements Rule.
func (r *ReplaceRule) Apply(kind model.Kind, content []byte) []byte {
	if !slices.Contains(r.kinds, kind) {
		return content
	}
	if len(r.guard) > 0 && !bytes.Contains(content, r.guard) {
		return content
	}
	out := content
	for _, rep := range r.replacements {
		if rep.Old == "" {
			continue
		}
		out = bytes.ReplaceAll(out, []byte(rep.Old), []byte(rep.New))
	}
	return out
}

// badgeGuard marks the Webflow runtime script that injects the badge.
const badgeGuard = "w-webflow-badge"

// BadgeRule returns the rule that disables the "Made in Webflow" badge.
//
// The Webflow runtime only shows the badge on *.webflow.io hosts and only
// removes it when the site plan says so; both checks are neutralized so the
// badge is never shown from the mirror.
func BadgeRule() *ReplaceRule {
	return NewReplaceRule("remove-badge",
		[]model.Kind{model.KindScript},
		badgeGuard,
		Replacement{Old: `/\.webflow\.io$/i.test(h)`, New: `false`},
		Replacement{Old: `if(a){i&&e.remove();`, New: `if(true){i&&e.remove();`},
	)
}
