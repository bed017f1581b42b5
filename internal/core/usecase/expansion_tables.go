package usecase

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

//go:embed expansion_tables.yaml
var defaultExpansionTablesYAML []byte

// Go's \b and \w only know ASCII, so a leading \b never matches before Ü, Ä or Ö. Table patterns are
// rewritten to Unicode-aware equivalents. The boundary consumes the neighbouring rune, which is fine
// because the tables are only used with MatchString.
const (
	unicodeWordChar     = `[\p{L}\p{N}_]`
	unicodeWordBoundary = `(?:^|$|[^\p{L}\p{N}_])`
)

var unicodeWordClasses = strings.NewReplacer(`\b`, unicodeWordBoundary, `\w`, unicodeWordChar)

// compileTablePattern compiles a table regular expression with Unicode-aware \b and \w.
func compileTablePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(unicodeWordClasses.Replace(pattern))
}

// intentOrder is the first-match-wins evaluation order of pattern groups.
var intentOrder = []domain.IntentType{
	domain.IntentDefinition,
	domain.IntentTableData,
	domain.IntentProcess,
	domain.IntentError,
}

type keywordMapping struct {
	Keyword  string `yaml:"keyword"`
	Document string `yaml:"document"`
}

type synonymSet struct {
	Keyword string   `yaml:"keyword"`
	Terms   []string `yaml:"terms"`
}

type expansionTablesFile struct {
	BaseConfidence         map[domain.IntentType]float64  `yaml:"base_confidence"`
	DocumentReferenceBonus float64                        `yaml:"document_reference_bonus"`
	MaxExpansionTerms      int                            `yaml:"max_expansion_terms"`
	IntentPatterns         map[domain.IntentType][]string `yaml:"intent_patterns"`
	IntentChunkTypes       map[domain.IntentType][]string `yaml:"intent_chunk_types"`
	IntentPrefixes         map[domain.IntentType]string   `yaml:"intent_prefixes"`
	LatestVersionPattern   string                         `yaml:"latest_version_pattern"`
	DocumentMapping        []keywordMapping               `yaml:"document_mapping"`
	Synonyms               []synonymSet                   `yaml:"synonyms"`
}

type compiledKeyword struct {
	keyword string
	pattern *regexp.Regexp
	value   string
	terms   []string
}

// ExpansionTables holds the compiled, read-only pattern tables used by QueryIntentAnalyzer.
type ExpansionTables struct {
	baseConfidence    map[domain.IntentType]float64
	documentBonus     float64
	maxExpansionTerms int
	intentPatterns    map[domain.IntentType][]*regexp.Regexp
	intentChunkTypes  map[domain.IntentType][]string
	intentPrefixes    map[domain.IntentType]string
	latestVersion     *regexp.Regexp
	documentMapping   []compiledKeyword
	synonyms          []compiledKeyword
}

// LoadExpansionTables reads tables from path, or the embedded defaults when path is empty.
func LoadExpansionTables(path string) (*ExpansionTables, error) {
	raw := defaultExpansionTablesYAML
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "load expansion tables", err)
		}
		raw = data
	}
	return ParseExpansionTables(raw)
}

func ParseExpansionTables(raw []byte) (*ExpansionTables, error) {
	var file expansionTablesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "parse expansion tables", err)
	}

	tables := &ExpansionTables{
		baseConfidence:    file.BaseConfidence,
		documentBonus:     file.DocumentReferenceBonus,
		maxExpansionTerms: file.MaxExpansionTerms,
		intentPatterns:    make(map[domain.IntentType][]*regexp.Regexp, len(file.IntentPatterns)),
		intentChunkTypes:  file.IntentChunkTypes,
		intentPrefixes:    file.IntentPrefixes,
	}
	if tables.baseConfidence == nil {
		tables.baseConfidence = map[domain.IntentType]float64{}
	}
	if tables.maxExpansionTerms <= 0 {
		tables.maxExpansionTerms = 3
	}

	for intent, patterns := range file.IntentPatterns {
		for _, p := range patterns {
			re, err := compileTablePattern(p)
			if err != nil {
				return nil, domain.WrapError(domain.ErrConfiguration, "compile intent pattern", fmt.Errorf("%s: %w", intent, err))
			}
			tables.intentPatterns[intent] = append(tables.intentPatterns[intent], re)
		}
	}

	if file.LatestVersionPattern != "" {
		re, err := compileTablePattern(file.LatestVersionPattern)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "compile latest version pattern", err)
		}
		tables.latestVersion = re
	}

	for _, m := range file.DocumentMapping {
		ck, err := compileKeyword(m.Keyword)
		if err != nil {
			return nil, err
		}
		ck.value = m.Document
		tables.documentMapping = append(tables.documentMapping, ck)
	}
	for _, s := range file.Synonyms {
		ck, err := compileKeyword(s.Keyword)
		if err != nil {
			return nil, err
		}
		ck.terms = s.Terms
		tables.synonyms = append(tables.synonyms, ck)
	}
	return tables, nil
}

// DefaultExpansionTables returns the embedded tables; they are validated by tests.
func DefaultExpansionTables() *ExpansionTables {
	tables, err := ParseExpansionTables(defaultExpansionTablesYAML)
	if err != nil {
		panic(err)
	}
	return tables
}

func compileKeyword(keyword string) (compiledKeyword, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return compiledKeyword{}, domain.WrapError(domain.ErrConfiguration, "compile keyword", fmt.Errorf("empty keyword"))
	}
	parts := strings.Fields(keyword)
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	re, err := regexp.Compile(`(?i)` + unicodeWordBoundary + strings.Join(parts, `\s+`) + unicodeWordBoundary)
	if err != nil {
		return compiledKeyword{}, domain.WrapError(domain.ErrConfiguration, "compile keyword", err)
	}
	return compiledKeyword{keyword: keyword, pattern: re}, nil
}

// ChunkTypesFor returns the chunk types that structurally match an intent.
func (t *ExpansionTables) ChunkTypesFor(intent domain.IntentType) []string {
	return t.intentChunkTypes[intent]
}
