package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ParseJSON extracts a JSON object from model output. It tries the whole
// text, then a fenced code block, then the first balanced {...} object.
// It returns false when none of them parse.
func ParseJSON(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	if obj, ok := decodeObject(raw); ok {
		return obj, true
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(raw, -1) {
		if obj, ok := decodeObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}

	for start := strings.IndexByte(raw, '{'); start >= 0; {
		end := matchingBrace(raw, start)
		if end < 0 {
			break
		}
		if obj, ok := decodeObject(raw[start : end+1]); ok {
			return obj, true
		}
		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return nil, false
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// matchingBrace returns the index of the brace closing the one at start,
// ignoring braces inside JSON strings, or -1.
func matchingBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Float reads a numeric field that models sometimes return as a string.
func Float(obj map[string]any, key string) (float64, bool) {
	switch v := obj[key].(type) {
	case float64:
		return v, true
	case string:
		var f float64
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// String reads a string field.
func String(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}
