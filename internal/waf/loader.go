package waf

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadDirectives concatenates the contents of every file matched by
// ruleGlobs (sorted for deterministic ordering) followed by inlineRules,
// producing the single directives_text an Engine Builder consumes.
func LoadDirectives(ruleGlobs []string, inlineRules string) (string, error) {
	var paths []string
	for _, pattern := range ruleGlobs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		b.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			b.WriteByte('\n')
		}
	}
	if inlineRules != "" {
		b.WriteString(inlineRules)
	}
	return b.String(), nil
}
