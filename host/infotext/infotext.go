// Package infotext reads and writes the "key: value, key: value" generation
// parameter line stored in image metadata.
package infotext

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var paramRE = regexp.MustCompile(`\s*(\w[\w \-/]+):\s*("(?:\\.|[^\\"])+"|[^,]*)(?:,|$)`)

// Quote wraps v in JSON quotes when it would otherwise break parsing.
func Quote(v string) string {
	if !strings.ContainsAny(v, ",\n:") && !strings.HasPrefix(v, `"`) {
		return v
	}

	b, _ := json.Marshal(v)
	return string(b)
}

// Unquote reverses Quote. Values that are not valid JSON strings are
// returned unchanged.
func Unquote(v string) string {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}

	var s string
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		return v
	}
	return s
}

// FormatValue renders v the way the host writes metadata: booleans as
// True/False and whole floats with a trailing ".0".
func FormatValue(v any) string {
	switch v := v.(type) {
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64, bitSize int) string {
	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// Format writes params in key order. Nil values are skipped.
func Format(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + Quote(FormatValue(params[k]))
	}
	return strings.Join(parts, ", ")
}

// Parse reads a parameter line. Later duplicates win.
func Parse(line string) map[string]string {
	out := make(map[string]string)
	for _, m := range paramRE.FindAllStringSubmatch(line, -1) {
		key := strings.TrimSpace(m[1])
		out[key] = Unquote(strings.TrimSpace(m[2]))
	}
	return out
}
