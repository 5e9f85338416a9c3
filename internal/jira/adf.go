package jira

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Defensive caps on outbound ADF payloads. Jira rejects oversized
// documents; truncating here beats a 400 on every long description.
const (
	maxADFDocChars  = 10000
	maxADFLineChars = 1000
)

// Truncate caps s at limit bytes, backing up so a multi-byte UTF-8 rune
// is never split at the cut point.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

type adfNode struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Content []adfNode       `json:"content,omitempty"`
	Version int             `json:"version,omitempty"`
	Attrs   json.RawMessage `json:"attrs,omitempty"`
}

// ADFFromPlainText converts plain text to an ADF document, one paragraph
// per input line. Always returns a valid document, even for empty input.
func ADFFromPlainText(text string) json.RawMessage {
	safe := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if safe == "" {
		doc := adfNode{Type: "doc", Version: 1, Content: []adfNode{{Type: "paragraph", Content: []adfNode{}}}}
		data, _ := json.Marshal(doc)
		return data
	}
	safe = Truncate(safe, maxADFDocChars)

	var content []adfNode
	for _, line := range strings.Split(safe, "\n") {
		para := adfNode{Type: "paragraph", Content: []adfNode{}}
		if strings.TrimSpace(line) != "" {
			para.Content = append(para.Content, adfNode{Type: "text", Text: Truncate(line, maxADFLineChars)})
		}
		content = append(content, para)
	}

	doc := adfNode{Type: "doc", Version: 1, Content: content}
	data, _ := json.Marshal(doc)
	return data
}

// PlainTextFromADF extracts readable text from an ADF document. Handles
// the node types Jira actually emits for descriptions and comments;
// unknown containers are walked through. A raw JSON string (pre-ADF API
// variants) is returned as-is.
func PlainTextFromADF(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var node adfNode
	if err := json.Unmarshal(raw, &node); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	}

	var parts []string
	addNewline := func() {
		if len(parts) == 0 {
			parts = append(parts, "\n")
			return
		}
		if !strings.HasSuffix(parts[len(parts)-1], "\n") {
			parts = append(parts, "\n")
		}
	}

	var walk func(n adfNode)
	walk = func(n adfNode) {
		switch n.Type {
		case "text":
			if n.Text != "" {
				parts = append(parts, n.Text)
			}
		case "paragraph", "heading", "blockquote":
			for _, child := range n.Content {
				walk(child)
			}
			addNewline()
		case "hardBreak":
			addNewline()
		case "bulletList", "orderedList":
			for _, child := range n.Content {
				walk(child)
			}
			addNewline()
		case "listItem":
			parts = append(parts, "- ")
			for _, child := range n.Content {
				walk(child)
			}
			addNewline()
		default:
			for _, child := range n.Content {
				walk(child)
			}
		}
	}
	walk(node)

	txt := strings.ReplaceAll(strings.Join(parts, ""), "\r\n", "\n")
	txt = strings.TrimSpace(txt)
	for strings.Contains(txt, "\n\n\n") {
		txt = strings.ReplaceAll(txt, "\n\n\n", "\n\n")
	}
	return txt
}
