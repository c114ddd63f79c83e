package engine

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/dukex/ruleflow/pkg/models"
)

// Bounds a single extractor match so a pathological pattern cannot stall matching.
const extractTimeout = 250 * time.Millisecond

// compiled is a cached pattern; re is nil when the pattern does not compile.
type compiled struct {
	re *regexp2.Regexp
}

// pattern compiles source once per engine. Compiled regexps are safe for
// concurrent matching.
func (e *Engine) pattern(source string) *regexp2.Regexp {
	if cached, ok := e.patterns.Load(source); ok {
		return cached.(compiled).re
	}

	re, err := regexp2.Compile(source, regexp2.ECMAScript)
	if err != nil {
		e.logger.Debug("Invalid extractor pattern", "pattern", source, "error", err)

		re = nil
	} else {
		re.MatchTimeout = extractTimeout
	}

	cached, _ := e.patterns.LoadOrStore(source, compiled{re: re})

	return cached.(compiled).re
}

// extract applies the extractor pattern to its source field and returns the
// first capture group. Missing sources, invalid patterns, timeouts and
// non-participating groups all yield no value.
func (e *Engine) extract(extractor models.EmailExtractor, payload map[string]any) (string, bool) {
	value, ok := Lookup(payload, extractor.Source)
	if !ok {
		return "", false
	}

	text, ok := asString(value)
	if !ok {
		return "", false
	}

	re := e.pattern(extractor.Pattern)
	if re == nil {
		return "", false
	}

	match, err := re.FindStringMatch(text)
	if err != nil || match == nil {
		return "", false
	}

	groups := match.Groups()
	if len(groups) < 2 || len(groups[1].Captures) == 0 {
		return "", false
	}

	return strings.TrimSpace(groups[1].String()), true
}
