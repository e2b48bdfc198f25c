package security

import (
	"regexp"
)

// defaultSuspiciousPatterns are the injection signatures rejected by the
// admission gate. The list is ordered and evaluated first-match.
var defaultSuspiciousPatterns = []string{
	`(?i)<script`,
	`(?i)javascript:`,
	`(?i)on\w+\s*=`,
	`(?i)eval\(`,
	`(?i)expression\(`,
}

// Scanner evaluates an ordered list of pattern matchers over a
// recursively-walked value tree. Traversal is fixed; the pattern policy
// is supplied at construction so it can be extended without touching it.
type Scanner struct {
	patterns []*regexp.Regexp
}

// NewScanner compiles the given patterns. Invalid patterns are an error
// at startup rather than silently skipped.
func NewScanner(patterns []string) (*Scanner, error) {
	if len(patterns) == 0 {
		patterns = defaultSuspiciousPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &Scanner{patterns: compiled}, nil
}

// DefaultScanner returns a scanner over the built-in signature list.
func DefaultScanner() *Scanner {
	s, err := NewScanner(nil)
	if err != nil {
		// The built-in patterns are constants; a compile failure is a bug.
		panic(err)
	}
	return s
}

// Suspicious reports whether any string anywhere in the value tree
// matches one of the configured patterns.
func (s *Scanner) Suspicious(v interface{}) bool {
	switch val := v.(type) {
	case string:
		for _, re := range s.patterns {
			if re.MatchString(val) {
				return true
			}
		}
		return false
	case map[string]interface{}:
		for _, inner := range val {
			if s.Suspicious(inner) {
				return true
			}
		}
		return false
	case []interface{}:
		for _, inner := range val {
			if s.Suspicious(inner) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// SuspiciousQuery reports whether any query parameter value matches.
func (s *Scanner) SuspiciousQuery(q map[string][]string) bool {
	for _, vals := range q {
		for _, v := range vals {
			if s.Suspicious(v) {
				return true
			}
		}
	}
	return false
}
