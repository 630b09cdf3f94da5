// Package normalizer turns raw structured-contents payloads into flat corpus
// records.
package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"wikirag/internal/domain"
)

// Policy chooses one article when the source returns several candidates for
// a single identifier.
type Policy interface {
	Name() string
	Select(candidates []domain.RawArticle) (domain.RawArticle, bool)
}

// FirstMatchPolicy keeps the first candidate unconditionally.
type FirstMatchPolicy struct{}

func (FirstMatchPolicy) Name() string { return "first" }

func (FirstMatchPolicy) Select(candidates []domain.RawArticle) (domain.RawArticle, bool) {
	if len(candidates) == 0 {
		return domain.RawArticle{}, false
	}
	return candidates[0], true
}

// RejectAmbiguousPolicy drops identifiers that resolve to more than one
// candidate.
type RejectAmbiguousPolicy struct{}

func (RejectAmbiguousPolicy) Name() string { return "reject-ambiguous" }

func (RejectAmbiguousPolicy) Select(candidates []domain.RawArticle) (domain.RawArticle, bool) {
	if len(candidates) != 1 {
		return domain.RawArticle{}, false
	}
	return candidates[0], true
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "first":
		return FirstMatchPolicy{}, nil
	case "reject-ambiguous":
		return RejectAmbiguousPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown selection policy: %q", name)
	}
}

// Normalizer converts raw payloads into corpus records.
type Normalizer struct {
	policy Policy
}

// New creates a normalizer. A nil policy means FirstMatchPolicy.
func New(policy Policy) *Normalizer {
	if policy == nil {
		policy = FirstMatchPolicy{}
	}
	return &Normalizer{policy: policy}
}

// Normalize returns the record for raw, or false when the payload is not a
// non-empty list, the policy rejects it, or the selected article carries no
// sections. It never returns a partially filled record.
func (n *Normalizer) Normalize(raw domain.RawDocument) (domain.CorpusRecord, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return domain.CorpusRecord{}, false
	}
	var candidates []domain.RawArticle
	if err := json.Unmarshal(trimmed, &candidates); err != nil {
		return domain.CorpusRecord{}, false
	}
	article, ok := n.policy.Select(candidates)
	if !ok || article.Sections == nil {
		return domain.CorpusRecord{}, false
	}
	return domain.CorpusRecord{
		ID:    string(article.Identifier),
		URL:   string(article.URL),
		Title: string(article.Name),
		Text:  CleanText(*article.Sections),
	}, true
}

// CleanText joins, in order, each section's "name." and its part values with
// single spaces. Sections without a parts collection are skipped entirely;
// empty names and values contribute nothing.
func CleanText(sections []domain.RawSection) string {
	var out []string
	for _, section := range sections {
		if section.Parts == nil {
			continue
		}
		if name := string(section.Name); name != "" {
			out = append(out, name+".")
		}
		for _, part := range *section.Parts {
			if v := string(part.Value); v != "" {
				out = append(out, v)
			}
		}
	}
	return strings.Join(out, " ")
}
