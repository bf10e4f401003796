package event

import (
	"fmt"
	"regexp"
)

// defaultMapping is the built-in release → compose rewrite chain. Rules
// apply in order; every matching rule rewrites the string.
var defaultMapping = []string{
	`\.GA$=`,
	`\.Z\.?(MAIN)?(\+)?(AUS|EUS|E4S|TUS)?$=`,
	`^rhel-=RHEL-`,
	`RHEL-10\.0\.BETA=RHEL-10-Beta`,
	`-candidate$=`,
	`-draft$=`,
	`$=-Nightly`,
	// narrow the odd backend compose naming for RHEL-7
	`RHEL-7-ELS-Nightly=RHEL-7.9-ZStream`,
}

var mappingRule = regexp.MustCompile(`^([^\s=]+)=([^=]*)$`)

// DeriveCompose maps an advisory release (or build target) to the
// compose tests run against. An explicit mapping disables the regexp
// chain: each rule is an exact RELEASE=COMPOSE pair and the first match
// wins. Without one, the built-in chain rewrites the release step by
// step. An empty result means the release is not testable and the
// caller skips it.
func DeriveCompose(release string, mapping []string) (string, error) {
	if len(mapping) > 0 {
		return applyMapping(release, mapping, false)
	}
	return applyMapping(release, defaultMapping, true)
}

func applyMapping(s string, mapping []string, useRegexp bool) (string, error) {
	out := s
	for _, rule := range mapping {
		m := mappingRule.FindStringSubmatch(rule)
		if m == nil {
			return "", fmt.Errorf("mapping %q does not have the expected PATTERN=VALUE format", rule)
		}
		pattern, value := m[1], m[2]
		if useRegexp {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("mapping %q: %w", rule, err)
			}
			if re.MatchString(out) {
				out = re.ReplaceAllString(out, value)
			}
			continue
		}
		if out == pattern {
			return value, nil
		}
	}
	if useRegexp {
		return out, nil
	}
	// exact-match mode with no match leaves the release unmapped
	return s, nil
}
