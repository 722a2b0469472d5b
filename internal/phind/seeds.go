package phind

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SeedExtractor finds the challenge seeds in the landing page source.
type SeedExtractor interface {
	ExtractSeeds(page string) (Seeds, error)
}

// DefaultSeedPattern matches the seed object as it appears escaped inside inline script data.
var DefaultSeedPattern = regexp.MustCompile(`\{\\"multiplier\\":(\d+),\\"addend\\":(\d+),\\"modulus\\":(\d+)\}`)

// RegexSeedExtractor pulls a backslash-escaped JSON seed object out of the page.
type RegexSeedExtractor struct {
	Pattern *regexp.Regexp
}

// NewRegexSeedExtractor uses DefaultSeedPattern when pattern is nil.
func NewRegexSeedExtractor(pattern *regexp.Regexp) *RegexSeedExtractor {
	if pattern == nil {
		pattern = DefaultSeedPattern
	}
	return &RegexSeedExtractor{Pattern: pattern}
}

// ExtractSeeds implements SeedExtractor
func (e *RegexSeedExtractor) ExtractSeeds(page string) (Seeds, error) {
	match := e.Pattern.FindString(page)
	if match == "" {
		return Seeds{}, ErrSeedsNotFound
	}

	var seeds Seeds
	if err := json.Unmarshal([]byte(strings.ReplaceAll(match, `\`, "")), &seeds); err != nil {
		return Seeds{}, fmt.Errorf("%w: %v", ErrSeedsNotFound, err)
	}
	if err := seeds.Validate(); err != nil {
		return Seeds{}, err
	}
	return seeds, nil
}

// SeedExtractorFunc adapts a plain function to SeedExtractor.
type SeedExtractorFunc func(page string) (Seeds, error)

// ExtractSeeds calls f(page).
func (f SeedExtractorFunc) ExtractSeeds(page string) (Seeds, error) { return f(page) }
