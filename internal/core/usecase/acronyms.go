package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

const defaultAcronymScrollLimit = 256

// DiscoverAcronyms reads abbreviation chunks from the collection and returns the acronyms they define,
// deduplicated case-insensitively in first-seen order.
func DiscoverAcronyms(ctx context.Context, store ports.VectorStore, collection string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultAcronymScrollLimit
	}
	points, err := store.Scroll(ctx, collection, domain.VectorFilter{
		ChunkTypes: []string{domain.ChunkTypeAbbreviation},
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("scroll abbreviations: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if !looksLikeAcronym(candidate) {
			return
		}
		key := strings.ToLower(candidate)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, candidate)
	}
	for _, point := range points {
		add(point.Payload.Title)
		for _, keyword := range point.Payload.Keywords {
			add(keyword)
		}
	}
	return out, nil
}

// MergeAcronyms appends discovered acronyms that the configured list does not already contain.
func MergeAcronyms(configured, discovered []string) []string {
	out := append([]string(nil), configured...)
	seen := make(map[string]struct{}, len(configured))
	for _, a := range configured {
		seen[strings.ToLower(a)] = struct{}{}
	}
	for _, a := range discovered {
		if _, ok := seen[strings.ToLower(a)]; ok {
			continue
		}
		seen[strings.ToLower(a)] = struct{}{}
		out = append(out, a)
	}
	return out
}

// looksLikeAcronym accepts short single tokens with at least two upper-case letters, e.g. "MaLo" or "UTILMD".
func looksLikeAcronym(s string) bool {
	n := len([]rune(s))
	if n < 2 || n > 12 {
		return false
	}
	upper := 0
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
		default:
			return false
		}
	}
	return upper >= 2
}
