// Package financial recovers the structured income statement from LLM
// analysis output. Local models frequently return the JSON object wrapped in
// markdown fences and with small syntax defects, so extraction is a scan
// followed by progressive repair.
package financial

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoStatement is returned when no JSON object can be recovered from the
// analysis text.
var ErrNoStatement = errors.New("no structured financial data found in analysis")

// Statement maps income-statement line names (Revenue, Net Income, ...) to
// their extracted values. Values are usually objects with "value", "from" and
// "to" fields, but models sometimes return bare "N/A" strings.
type Statement map[string]any

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	fencedRe     = regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```")

	trailingCommaObjRe = regexp.MustCompile(`,\s*}`)
	trailingCommaArrRe = regexp.MustCompile(`,\s*]`)
	singleQuoteKeyRe   = regexp.MustCompile(`'([^']*)'\s*:`)
	singleQuoteValRe   = regexp.MustCompile(`:\s*'([^']*)'`)
	commaNumberRe      = regexp.MustCompile(`("value":\s*)([0-9][0-9,]*[0-9])`)
	unquotedDateRe     = regexp.MustCompile(`"(from|to)":\s*(\d{4}-\d{2}-\d{2})`)

	fieldRe      = regexp.MustCompile(`"([^"]+)":\s*\{([^}]*)\}`)
	fieldValueRe = regexp.MustCompile(`"value":\s*"?([^,"\n]+(?:,[^,"\n]+)*)"?`)
	fieldFromRe  = regexp.MustCompile(`"from":\s*"?([0-9]{4}-[0-9]{2}-[0-9]{2}|N/A)"?`)
	fieldToRe    = regexp.MustCompile(`"to":\s*"?([0-9]{4}-[0-9]{2}-[0-9]{2}|N/A)"?`)
)

// ExtractStatement locates the JSON object inside the analysis text and
// parses it, repairing common model output defects (trailing commas, single
// quotes, thousand-separator commas in numbers, unquoted dates). As a last
// resort it recovers fields one by one with pattern matching.
func ExtractStatement(text string) (Statement, error) {
	candidate := findCandidate(text)
	if candidate == "" {
		return nil, ErrNoStatement
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		repaired := repairJSON(candidate)
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			raw = recoverFields(candidate)
		}
	}
	if len(raw) == 0 {
		return nil, ErrNoStatement
	}

	statement := Statement(raw)
	statement.normalizeValues()
	return statement, nil
}

// findCandidate picks the JSON object out of the surrounding prose: a
// ```json fence first, then a bare fence, then the outermost brace pair.
func findCandidate(text string) string {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

// repairJSON fixes the defects local models produce most often.
func repairJSON(s string) string {
	s = trailingCommaObjRe.ReplaceAllString(s, "}")
	s = trailingCommaArrRe.ReplaceAllString(s, "]")
	s = singleQuoteKeyRe.ReplaceAllString(s, `"$1":`)
	s = singleQuoteValRe.ReplaceAllString(s, `: "$1"`)
	s = commaNumberRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := commaNumberRe.FindStringSubmatch(match)
		return sub[1] + strings.ReplaceAll(sub[2], ",", "")
	})
	s = unquotedDateRe.ReplaceAllString(s, `"$1": "$2"`)
	return s
}

// recoverFields extracts metric objects one at a time when the candidate is
// beyond JSON repair. Returns nil when nothing usable is found.
func recoverFields(candidate string) map[string]any {
	recovered := make(map[string]any)

	for _, field := range fieldRe.FindAllStringSubmatch(candidate, -1) {
		name, body := field[1], field[2]

		valueMatch := fieldValueRe.FindStringSubmatch(body)
		if valueMatch == nil {
			continue
		}

		metric := map[string]any{
			"value": parseValue(valueMatch[1]),
		}
		if m := fieldFromRe.FindStringSubmatch(body); m != nil {
			metric["from"] = m[1]
		}
		if m := fieldToRe.FindStringSubmatch(body); m != nil {
			metric["to"] = m[1]
		}
		recovered[name] = metric
	}

	if len(recovered) == 0 {
		return nil
	}
	return recovered
}

// parseValue converts a recovered value string to a number when possible,
// stripping thousand-separator commas first.
func parseValue(s string) any {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ","))
	cleaned := strings.ReplaceAll(s, ",", "")
	if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return f
	}
	return strings.Trim(s, `"'`)
}

// normalizeValues rewrites metric values that survived parsing as strings
// with thousand separators ("1,066,990") into numbers.
func (s Statement) normalizeValues() {
	for _, v := range s {
		metric, ok := v.(map[string]any)
		if !ok {
			continue
		}
		value, ok := metric["value"].(string)
		if !ok || !strings.Contains(value, ",") {
			continue
		}
		cleaned := strings.ReplaceAll(value, ",", "")
		if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
			metric["value"] = n
		}
	}
}
