package common

import (
	"fmt"
	"regexp"
	"strings"
)

// CompileCaseInsensitive compiles pattern so it matches regardless of case.
func CompileCaseInsensitive(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(CaseInsensitive(pattern))
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return re, nil
}

// CaseInsensitive wraps a pattern so it matches regardless of case.
func CaseInsensitive(pattern string) string {
	if strings.HasPrefix(pattern, "(?i)") {
		return pattern
	}
	return "(?i)" + pattern
}
