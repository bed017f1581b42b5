package qdrant

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

var (
	titleKeys     = []string{"title", "name", "document_title", "heading"}
	contentKeys   = []string{"content", "text", "page_content", "chunk_text", "body"}
	sourceKeys    = []string{"source", "filename", "file", "document_name", "url"}
	dateKeys      = []string{"date", "publication_date", "valid_from", "version_date"}
	chunkTypeKeys = []string{"chunk_type", "type", "chunkType"}
	baseNameKeys  = []string{"document_base_name", "documentBaseName", "base_name", "document"}
	pageKeys      = []string{"page", "page_number", "pageNumber"}
	keywordKeys   = []string{"keywords", "tags"}
)

// NormalizePayload maps the payload shapes found in the collections onto DocumentPayload.
// Nothing behind the vector store port reads raw payload maps.
func NormalizePayload(raw map[string]any) domain.DocumentPayload {
	if raw == nil {
		return domain.DocumentPayload{}
	}
	payload := domain.DocumentPayload{
		Title:            firstString(raw, titleKeys),
		Content:          firstString(raw, contentKeys),
		Source:           firstString(raw, sourceKeys),
		Date:             firstString(raw, dateKeys),
		ChunkType:        firstString(raw, chunkTypeKeys),
		ContentType:      firstString(raw, []string{"content_type", "contentType"}),
		DocumentBaseName: firstString(raw, baseNameKeys),
		Page:             firstInt(raw, pageKeys),
		Keywords:         firstStrings(raw, keywordKeys),
	}
	if payload.ChunkType == "" {
		payload.ChunkType = domain.ChunkTypeParagraph
	}
	if payload.Title == "" {
		payload.Title = payload.Source
	}
	return payload
}

func firstString(raw map[string]any, keys []string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch typed := v.(type) {
		case string:
			s = typed
		case float64:
			s = strconv.FormatFloat(typed, 'f', -1, 64)
		default:
			s = fmt.Sprintf("%v", typed)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(raw map[string]any, keys []string) int {
	for _, key := range keys {
		switch typed := raw[key].(type) {
		case float64:
			return int(typed)
		case int:
			return typed
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(typed)); err == nil {
				return n
			}
		}
	}
	return 0
}

func firstStrings(raw map[string]any, keys []string) []string {
	for _, key := range keys {
		switch typed := raw[key].(type) {
		case []any:
			out := make([]string, 0, len(typed))
			for _, item := range typed {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
			if len(out) > 0 {
				return out
			}
		case string:
			var out []string
			for _, part := range strings.Split(typed, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}
