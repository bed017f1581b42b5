package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

var (
	edifactSegmentPattern = regexp.MustCompile(`\b(UNH|UNT|BGM|DTM|NAD|IDE|LOC|RFF|QTY|STS|SEQ|CCI|CAV)\+`)
	dataElementCodePattern = regexp.MustCompile(`\b\d{4}\b`)
)

// BoostConfig holds the additive payload boosts. The values are tuning defaults, not fixed semantics.
type BoostConfig struct {
	ChunkTypes         map[string]float64
	Acronyms           []string
	AcronymBoost       float64
	MaxAcronymBoost    float64
	EdifactSegment     float64
	DataElementCode    float64
	MaxDataElementCode float64
	CuratedContent     float64
}

func DefaultBoostConfig() BoostConfig {
	return BoostConfig{
		ChunkTypes: map[string]float64{
			domain.ChunkTypeStructuredTable:    0.05,
			domain.ChunkTypeValidationRule:     0.04,
			domain.ChunkTypeDefinition:         0.03,
			domain.ChunkTypeAbbreviation:       0.03,
			domain.ChunkTypeProcessDescription: 0.03,
			domain.ChunkTypeFlow:               0.02,
			domain.ChunkTypeTableMap:           0.02,
		},
		Acronyms: []string{
			"GPKE", "WiM", "GeLi", "MaBiS", "UTILMD", "MSCONS", "APERAK", "INVOIC", "REMADV",
			"ORDERS", "CONTRL", "EDIFACT", "MaLo", "MeLo", "BDEW", "BNetzA", "EEG", "KWKG",
		},
		AcronymBoost:       0.03,
		MaxAcronymBoost:    0.09,
		EdifactSegment:     0.02,
		DataElementCode:    0.04,
		MaxDataElementCode: 0.08,
		CuratedContent:     0.05,
	}
}

// payloadBooster is precompiled once per retriever.
type payloadBooster struct {
	cfg      BoostConfig
	acronyms []compiledAcronym
}

type compiledAcronym struct {
	name    string
	pattern *regexp.Regexp
}

func newPayloadBooster(cfg BoostConfig) *payloadBooster {
	b := &payloadBooster{cfg: cfg}
	for _, acronym := range cfg.Acronyms {
		acronym = strings.TrimSpace(acronym)
		if acronym == "" {
			continue
		}
		b.acronyms = append(b.acronyms, compiledAcronym{
			name:    acronym,
			pattern: regexp.MustCompile(`(?i)` + unicodeWordBoundary + regexp.QuoteMeta(acronym) + unicodeWordBoundary),
		})
	}
	return b
}

// Boost returns the payload boost for one result. Acronym and code boosts only apply to terms the query mentions.
func (b *payloadBooster) Boost(query string, payload domain.DocumentPayload) float64 {
	boost := b.cfg.ChunkTypes[payload.ChunkType]

	text := payload.Title + "\n" + payload.Content + "\n" + strings.Join(payload.Keywords, " ")

	acronymBoost := 0.0
	for _, acronym := range b.acronyms {
		if acronym.pattern.MatchString(query) && acronym.pattern.MatchString(text) {
			acronymBoost += b.cfg.AcronymBoost
		}
	}
	boost += minFloat(acronymBoost, b.cfg.MaxAcronymBoost)

	if edifactSegmentPattern.MatchString(payload.Content) {
		boost += b.cfg.EdifactSegment
	}

	codeBoost := 0.0
	seen := make(map[string]struct{})
	for _, code := range dataElementCodePattern.FindAllString(query, -1) {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		if strings.Contains(text, code) {
			codeBoost += b.cfg.DataElementCode
		}
	}
	boost += minFloat(codeBoost, b.cfg.MaxDataElementCode)

	switch payload.ContentType {
	case domain.ContentTypeFAQ, domain.ContentTypeCorrection, domain.ContentTypeCurated:
		boost += b.cfg.CuratedContent
	}
	return boost
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
