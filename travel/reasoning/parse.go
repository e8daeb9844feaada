package reasoning

import (
	"strings"

	"github.com/tidwall/gjson"
)

// extractJSON finds the JSON document in a model reply. The whole reply is
// tried first, then the text between code fences, then the outermost
// bracketed span.
func extractJSON(raw string) (gjson.Result, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return gjson.Result{}, false
	}
	if gjson.Valid(raw) {
		return gjson.Parse(raw), true
	}
	if fenced := stripFences(raw); fenced != raw && gjson.Valid(fenced) {
		return gjson.Parse(fenced), true
	}
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(raw, pair[0])
		end := strings.LastIndexByte(raw, pair[1])
		if start < 0 || end <= start {
			continue
		}
		if candidate := raw[start : end+1]; gjson.Valid(candidate) {
			return gjson.Parse(candidate), true
		}
	}
	return gjson.Result{}, false
}

func stripFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	body := strings.TrimPrefix(raw, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
}

// stringList reads a JSON array of non-empty strings.
func stringList(r gjson.Result) ([]string, bool) {
	if !r.IsArray() {
		return nil, false
	}
	var out []string
	for _, item := range r.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

// parseFacts accepts either a bare array or an object with a "facts" array.
func parseFacts(raw string) ([]string, bool) {
	doc, ok := extractJSON(raw)
	if !ok {
		return nil, false
	}
	if doc.IsArray() {
		return stringList(doc)
	}
	return stringList(doc.Get("facts"))
}

// parseFactsBatch reads {"facts": {"<id>": [...]}} or a bare id map.
func parseFactsBatch(raw string, ids []string) map[string][]string {
	doc, ok := extractJSON(raw)
	if !ok {
		return nil
	}
	if facts := doc.Get("facts"); facts.IsObject() {
		doc = facts
	}
	out := make(map[string][]string, len(ids))
	for _, id := range ids {
		if facts, ok := stringList(doc.Get(id)); ok {
			out[id] = facts
		}
	}
	return out
}

// parseLabels reads a JSON object of id to label.
func parseLabels(raw string) map[string]string {
	doc, ok := extractJSON(raw)
	if !ok || !doc.IsObject() {
		return nil
	}
	out := make(map[string]string)
	doc.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.String()
		return true
	})
	return out
}
