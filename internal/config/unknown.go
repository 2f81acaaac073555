package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid dotted keys in the config file.
var knownKeys = map[string]bool{
	"api.base_url":   true,
	"api.stream_url": true,
	"api.token":      true,

	"session.team_id": true,
	"session.user_id": true,

	"storage.db_path": true,

	"logging.log_level":  true,
	"logging.log_format": true,

	"network.connect_timeout": true,
	"network.data_timeout":    true,
	"network.user_agent":      true,
}

// knownKeysList is the sorted slice form of knownKeys for Levenshtein
// matching. Sorted for deterministic suggestions when two candidates have
// the same edit distance.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. This
// strictness is deliberate: silently ignoring a typo in a config file
// leads to hard-to-debug behavior.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		if keyStr := key.String(); !knownKeys[keyStr] {
			errs = append(errs, buildKeyError(keyStr))
		}
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key, suggesting
// the closest known key when one is plausible.
func buildKeyError(keyStr string) error {
	if suggestion := closestMatch(keyStr, knownKeysList); suggestion != "" {
		return fmt.Errorf("unknown config key %q — did you mean %q?", keyStr, suggestion)
	}

	return fmt.Errorf("unknown config key %q", keyStr)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 0; i < len(a); i++ {
		curr[0] = i + 1

		for j := 0; j < len(b); j++ {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
