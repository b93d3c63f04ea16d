package logaccess

import (
	"regexp"
	"regexp/syntax"

	"github.com/silexa/gateway-sidecar/internal/gatewayerr"
)

// Bounds enforced before a search pattern is ever handed to regexp.Compile
// (spec.md §4.7, §8, §9 "Regex sandboxing"). No ReDoS-guard library
// appears anywhere in the retrieval pack, so this walks the parsed
// regexp/syntax tree directly rather than compiling first — see
// DESIGN.md.
const (
	maxPatternLength = 500
	maxCaptureGroups = 15
)

// SafePattern wraps a compiled regexp known to have passed the guard.
type SafePattern struct {
	re *regexp.Regexp
}

func (p *SafePattern) MatchString(s string) bool {
	return p.re.MatchString(s)
}

// CompileSafe validates pattern against the length and capture-group
// bounds, then compiles it. Rejection happens before compilation ever
// sees the pattern.
func CompileSafe(pattern string) (*SafePattern, error) {
	if len(pattern) > maxPatternLength {
		return nil, gatewayerr.New(gatewayerr.InvalidPattern, "pattern exceeds maximum length")
	}

	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, gatewayerr.New(gatewayerr.InvalidPattern, "pattern is not a valid regular expression")
	}
	if countCaptureGroups(parsed) > maxCaptureGroups {
		return nil, gatewayerr.New(gatewayerr.InvalidPattern, "pattern has too many capture groups")
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, gatewayerr.New(gatewayerr.InvalidPattern, "pattern failed to compile")
	}
	return &SafePattern{re: re}, nil
}

func countCaptureGroups(re *syntax.Regexp) int {
	count := 0
	if re.Op == syntax.OpCapture {
		count++
	}
	for _, sub := range re.Sub {
		count += countCaptureGroups(sub)
	}
	return count
}
