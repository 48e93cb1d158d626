// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package llm

import "strings"

// ExtractJSONBlock strips the markdown code fences models tend to wrap
// JSON in. Without fences it falls back to the outermost brace pair, and
// failing that returns the trimmed input.
func ExtractJSONBlock(content string) string {
	s := strings.TrimSpace(content)

	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		return strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end > start {
		return s[start : end+1]
	}
	return s
}
