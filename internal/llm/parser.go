package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/rules"
)

// classification is the decoded provider answer.
type classification struct {
	code        string
	reason      string
	singlePhase bool
}

type classificationJSON struct {
	SinglePhase *bool  `json:"single_phase"`
	NCM         string `json:"ncm"`
	Reason      string `json:"reason"`
}

var pythonBool = regexp.MustCompile(`\b(True|False)\b`)

// parseClassification accepts a JSON object, a bare [bool, "ncm", "reason"] array,
// or either one wrapped in a markdown code fence.
func parseClassification(content string) (classification, error) {
	text := stripCodeFence(content)
	if text == "" {
		return classification{}, fmt.Errorf("%w: empty response", common.ErrMalformedResponse)
	}

	// Whichever delimiter opens first is the outer value.
	obj, hasObj := extractDelimited(text, '{', '}')
	arr, hasArr := extractDelimited(text, '[', ']')
	switch {
	case hasArr && (!hasObj || strings.IndexByte(text, '[') < strings.IndexByte(text, '{')):
		return parseArray(arr)
	case hasObj:
		return parseObject(obj)
	}
	return classification{}, fmt.Errorf("%w: no JSON found in %q", common.ErrMalformedResponse, truncate(text, 80))
}

func parseObject(raw string) (classification, error) {
	var obj classificationJSON
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return classification{}, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}
	if obj.SinglePhase == nil {
		return classification{}, fmt.Errorf("%w: missing single_phase", common.ErrMalformedResponse)
	}
	return classification{
		singlePhase: *obj.SinglePhase,
		code:        cleanCode(obj.NCM),
		reason:      strings.TrimSpace(obj.Reason),
	}, nil
}

func parseArray(raw string) (classification, error) {
	raw = pythonBool.ReplaceAllStringFunc(raw, strings.ToLower)
	raw = strings.ReplaceAll(raw, "'", `"`)

	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return classification{}, fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}
	if len(items) < 1 {
		return classification{}, fmt.Errorf("%w: empty array", common.ErrMalformedResponse)
	}

	singlePhase, ok := items[0].(bool)
	if !ok {
		return classification{}, fmt.Errorf("%w: first element %v is not a boolean", common.ErrMalformedResponse, items[0])
	}

	result := classification{singlePhase: singlePhase}
	if len(items) > 1 {
		result.code = cleanCode(fmt.Sprint(items[1]))
	}
	if len(items) > 2 {
		if s, ok := items[2].(string); ok {
			result.reason = strings.TrimSpace(s)
		}
	}
	return result, nil
}

// cleanCode returns the normalized 8-digit code, or "" when the provider sent something else.
func cleanCode(code string) string {
	normalized, ok := rules.NormalizeCode(code)
	if !ok {
		return ""
	}
	return normalized
}

func stripCodeFence(content string) string {
	text := strings.TrimSpace(content)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// extractDelimited returns the outermost open...close span, if any.
func extractDelimited(text string, open, closing byte) (string, bool) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, closing)
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
