package excel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseKV parses a key/value cell. Accepted forms are a JSON object,
// "a=1&b=2", or "k: v" pairs separated by ';', newlines or ','.
func ParseKV(text string) map[string]string {
	result := make(map[string]string)
	s := strings.TrimSpace(text)
	if s == "" {
		return result
	}

	if obj, ok := parseJSONObject(s); ok {
		for k, v := range obj {
			result[k] = stringify(v)
		}
		return result
	}

	if strings.Contains(s, "&") && strings.Contains(s, "=") {
		for _, pair := range strings.Split(s, "&") {
			k, v, ok := strings.Cut(pair, "=")
			if ok {
				result[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
		return result
	}

	parts := []string{s}
	for _, d := range []string{";", "\n", ","} {
		if !strings.Contains(s, d) {
			continue
		}
		var next []string
		for _, chunk := range parts {
			next = append(next, strings.Split(chunk, d)...)
		}
		parts = next
	}
	for _, part := range parts {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			// a single "k=v" without '&'
			k, v, ok = strings.Cut(part, "=")
		}
		if ok && strings.TrimSpace(k) != "" {
			result[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return result
}

func parseJSONObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return fmt.Sprint(val)
		}
		return strings.TrimSpace(buf.String())
	}
}

// ParseStatus reads an expected status cell such as "200" or "200.0".
// Only codes in the HTTP range 100-599 are accepted.
func ParseStatus(text string) (int, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || f < minStatus || f > maxStatus {
			return 0, false
		}
		n = int(f)
	}
	if n < minStatus || n > maxStatus {
		return 0, false
	}
	return n, true
}

const (
	minStatus = 100
	maxStatus = 599
)
