package handler

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/plugin"
)

// URLMatcher matches request paths against one regular expression per
// method. Patterns must match the whole path. Copy and move match when
// either the source or the target path matches; rename and association
// changes look at the source path and restore-version at the version
// path. Invert flips every comparison.
type URLMatcher struct {
	patterns map[method.Method]*regexp.Regexp
	invert   bool
}

// NewURLMatcher builds a matcher from "<method>Pattern" properties
// (getPattern, putChildPattern, ...) and an optional "invert" flag.
func NewURLMatcher(props plugin.Properties) (*URLMatcher, error) {
	u := &URLMatcher{patterns: make(map[method.Method]*regexp.Regexp)}
	for _, m := range method.All() {
		expr, ok := props.Get(m.PatternProperty())
		if !ok || expr == "" {
			continue
		}
		if err := u.SetPattern(m, expr); err != nil {
			return nil, err
		}
	}
	if v, ok := props.Get("invert"); ok && v != "" {
		invert, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invert %q: %w", v, err)
		}
		u.invert = invert
	}
	return u, nil
}

// MatchAll returns a matcher using expr for every method.
func MatchAll(expr string) (*URLMatcher, error) {
	u := &URLMatcher{patterns: make(map[method.Method]*regexp.Regexp)}
	for _, m := range method.All() {
		if err := u.SetPattern(m, expr); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// SetPattern sets the expression for m.
func (u *URLMatcher) SetPattern(m method.Method, expr string) error {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return fmt.Errorf("%s %q: %w", m.PatternProperty(), expr, err)
	}
	u.patterns[m] = re
	return nil
}

// SetInvert flips the matcher.
func (u *URLMatcher) SetInvert(invert bool) {
	u.invert = invert
}

// Name identifies the filter in listings.
func (u *URLMatcher) Name() string {
	return KeyURLMatcher
}

// Matches implements Filter.
func (u *URLMatcher) Matches(rc *RequestContext) (bool, error) {
	re := u.patterns[rc.Method]
	if re == nil {
		return false, nil
	}
	match := func(p string) bool {
		return u.invert != re.MatchString(p)
	}
	switch rc.Method {
	case method.Copy, method.Move:
		return match(rc.SourcePath) || match(rc.TargetPath), nil
	case method.Rename, method.AddAssociation, method.RemoveAssociation:
		return match(rc.SourcePath), nil
	case method.RestoreVersion:
		return match(rc.VersionPath), nil
	case method.ExecuteQuery:
		if rc.Path == "" {
			return false, nil
		}
	}
	return match(rc.Path), nil
}
