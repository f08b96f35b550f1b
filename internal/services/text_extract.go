package services

import (
	"encoding/json"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeWhitespace collapses runs of whitespace to single spaces and
// trims the result.
func NormalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

var (
	horizontalRun = regexp.MustCompile(`[ \t]+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeLines collapses horizontal whitespace but keeps line structure,
// so paragraph breaks and markdown headings survive into chunking.
func NormalizeLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalRun.ReplaceAllString(line, " "))
	}
	joined := blankLineRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(joined)
}

// CollectText walks an editor content tree depth-first, left to right, and
// returns every text leaf it finds. Editors disagree on the child-collection
// key, so all known spellings (content, children, blocks) are followed; a
// node carrying none of them is a leaf. Trees are editor-produced and
// acyclic, so no cycle detection is needed.
func CollectText(node any) []string {
	switch v := node.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []any:
		var parts []string
		for _, child := range v {
			parts = append(parts, CollectText(child)...)
		}
		return parts
	case map[string]any:
		var parts []string
		if text, ok := v["text"].(string); ok {
			parts = append(parts, text)
		}
		for _, key := range []string{"content", "children", "blocks"} {
			if children, ok := v[key].([]any); ok {
				for _, child := range children {
					parts = append(parts, CollectText(child)...)
				}
			}
		}
		return parts
	default:
		return nil
	}
}

// ExtractPlainText flattens a content tree to normalized plain text.
func ExtractPlainText(node any) string {
	return NormalizeWhitespace(strings.Join(CollectText(node), " "))
}

// ExtractPlainTextJSON decodes a raw JSON content tree and flattens it.
// Undecodable or empty content yields an empty string, not an error: an
// empty note is a valid indexing input.
func ExtractPlainTextJSON(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	return ExtractPlainText(node)
}
