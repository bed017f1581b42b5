package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

const reasoningSystemPrompt = `Du bist ein Assistent für die deutsche Energiewirtschaft und Marktkommunikation (GPKE, WiM, GeLi Gas, MaBiS, EDIFACT).
Antworte präzise auf Deutsch und nur auf Basis des bereitgestellten Kontexts.
Wenn der Kontext nicht ausreicht, sage das ausdrücklich.`

func buildContextAnalysisPrompt(query, contextText string) string {
	return fmt.Sprintf(`Analysiere, wie gut der folgende Kontext die Frage abdeckt.
Antworte ausschließlich mit einem JSON-Objekt mit den Schlüsseln:
topicsIdentified (Array von Strings), informationGaps (Array von Strings), contextQuality (Zahl von 0 bis 1).

Frage:
%s

Kontext:
%s
`, query, contextText)
}

func buildQAAnalysisPrompt(query, contextText string) string {
	return fmt.Sprintf(`Prüfe, ob die Frage mit dem Kontext beantwortet werden kann.
Antworte ausschließlich mit einem JSON-Objekt mit den Schlüsseln:
needsMoreContext (bool), answerable (bool), confidence (Zahl von 0 bis 1), missingInfo (Array von Strings).

Frage:
%s

Kontext:
%s
`, query, contextText)
}

func buildAnswerPrompt(query, contextText string, previous string, missing []string) string {
	var b strings.Builder
	b.WriteString("Beantworte die Frage anhand des Kontexts. Nenne relevante Fristen, Prozessschritte und Nachrichtentypen.\n\n")
	b.WriteString("Frage:\n")
	b.WriteString(query)
	b.WriteString("\n\nKontext:\n")
	b.WriteString(contextText)
	if previous != "" {
		b.WriteString("\n\nBisherige Antwort (verbessern):\n")
		b.WriteString(previous)
	}
	if len(missing) > 0 {
		b.WriteString("\n\nFehlende Aspekte, die abgedeckt werden sollen:\n- ")
		b.WriteString(strings.Join(missing, "\n- "))
	}
	b.WriteString("\n")
	return b.String()
}

func buildDirectAnswerPrompt(query string) string {
	return fmt.Sprintf(`Zu der folgenden Frage wurden keine Dokumente gefunden.
Antworte kurz aus allgemeinem Fachwissen und weise darauf hin, dass keine Quellen vorliegen.

Frage:
%s
`, query)
}

func buildQualityAssessmentPrompt(query, answer, contextText string) string {
	return fmt.Sprintf(`Bewerte die Antwort auf die Frage im Hinblick auf Vollständigkeit und Korrektheit gegenüber dem Kontext.
Antworte ausschließlich mit einem JSON-Objekt mit den Schlüsseln:
confidence (Zahl von 0 bis 1), missingInfo (Array von Strings).

Frage:
%s

Antwort:
%s

Kontext:
%s
`, query, answer, contextText)
}

func buildCompressedAnswerPrompt(query, compressedContext string) string {
	return fmt.Sprintf(`Beantworte die Frage knapp anhand des gekürzten Kontexts.

Frage:
%s

Kontext (gekürzt):
%s
`, query, compressedContext)
}

// formatContext renders results grouped by chunk type, the same layout every prompt uses.
func formatContext(rc domain.RetrievalContext) string {
	var b strings.Builder
	n := 0
	for _, group := range rc.Groups {
		fmt.Fprintf(&b, "## %s\n", group.ChunkType)
		for _, result := range group.Results {
			n++
			fmt.Fprintf(&b, "[%d] %s (%s, Score %.3f)\n%s\n\n",
				n,
				result.Payload.Title,
				result.Payload.Source,
				result.MergedScore,
				strings.TrimSpace(result.Payload.Content),
			)
		}
	}
	return b.String()
}

func staticFallbackResponse(rc domain.RetrievalContext) string {
	if len(rc.Sources) == 0 {
		return "Die Frage konnte nicht beantwortet werden, und es wurden keine passenden Dokumente gefunden."
	}
	var b strings.Builder
	b.WriteString("Die Frage konnte nicht vollständig beantwortet werden. Folgende Quellen sind relevant:\n")
	for i, source := range rc.Sources {
		if i == 3 {
			break
		}
		title := source.Title
		if title == "" {
			title = source.Source
		}
		fmt.Fprintf(&b, "%d. %s", i+1, title)
		if source.Source != "" && source.Source != title {
			fmt.Fprintf(&b, " (%s)", source.Source)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
