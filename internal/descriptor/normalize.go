package descriptor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizeRegistryRoot turns a configured registry root into its canonical
// form: "" for the root itself, otherwise a path with one leading slash and
// no trailing slash.
func NormalizeRegistryRoot(root string) string {
	root = strings.TrimRight(strings.TrimSpace(root), PathSeparator)
	if root == "" {
		return ""
	}
	if !strings.HasPrefix(root, PathSeparator) {
		root = PathSeparator + root
	}
	return root
}

// NormalizeUnder normalizes p and places it under base unless it already is.
// "users/" under "/_system/config" becomes "/_system/config/users".
func NormalizeUnder(base, p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, PathSeparator) {
		p = PathSeparator + p
	}
	p = strings.TrimRight(p, PathSeparator)
	if p == base || strings.HasPrefix(p, base+PathSeparator) {
		return p
	}
	return base + p
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// isTrue matches the descriptor's flag convention: only the literal "true"
// enables a flag.
func isTrue(s *string) bool {
	return text(s) == "true"
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(elem, field string, s *string) (bool, error) {
	v := text(s)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return false, fmt.Errorf("%s: %s %q: %w", elem, field, v, ErrInvalidValue)
	}
	return b, nil
}

func parseInt(elem, field string, s *string) (int, error) {
	v := text(s)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: %s %q: %w", elem, field, v, ErrInvalidValue)
	}
	return n, nil
}

func parseMillis(elem, field string, s *string) (time.Duration, error) {
	v := text(s)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	// Durations are int64 nanoseconds.
	if err != nil || n < 0 || n > math.MaxInt64/int64(time.Millisecond) {
		return 0, fmt.Errorf("%s: %s %q: %w", elem, field, v, ErrInvalidValue)
	}
	return time.Duration(n) * time.Millisecond, nil
}
