package document

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thingswise/etcdstat/internal/ordered"
)

// Decode interprets raw as a JSON literal. Objects keep their key order.
// When raw is not JSON, Decode returns (raw, false).
func Decode(raw string) (any, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw, false
	}

	v, err := ordered.DecodeJSON([]byte(trimmed))
	if err != nil {
		return raw, false
	}
	return v, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}
