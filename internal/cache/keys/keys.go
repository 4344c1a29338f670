// Package keys builds the Redis keys for cached results and the cell index.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "zr"

// ResultKey identifies a cached result array by store function and the
// canonical GeoJSON of the polygon. Equal geometries give equal keys.
func ResultKey(function string, canonicalGeoJSON []byte) string {
	d := xxhash.New()
	_, _ = d.WriteString(strings.TrimSpace(function))
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(canonicalGeoJSON)
	return fmt.Sprintf("%s:res:%s:g=%016x", prefix, sanitize(strings.TrimSpace(function)), d.Sum64())
}

// CellIndexKey names the set of result keys whose polygon touches cell.
func CellIndexKey(res int, cell string) string {
	return fmt.Sprintf("%s:cell:%d:%s", prefix, res, sanitize(strings.ToLower(strings.TrimSpace(cell))))
}

func CellIndexKeys(res int, cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		out = append(out, CellIndexKey(res, c))
	}
	return out
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '.' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
