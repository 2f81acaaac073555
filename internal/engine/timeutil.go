package engine

import "time"

// Timestamps cross the wire as strings and are compared, not computed with.
// The comparison is a total order over "maybe a time": an absent or
// unparsable timestamp sorts below every parsable one, and two unparsable
// timestamps compare equal. Ties go to the baseline side (the caller's
// first argument), which keeps merges idempotent.

// timestampFormats lists accepted layouts, most specific first. The server
// emits RFC 3339 with sub-second precision; older rows may lack it.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseTimestamp attempts to parse a wire timestamp. ok is false for empty
// or unparsable values.
func parseTimestamp(s string) (t time.Time, ok bool) {
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampFormats {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}

// laterTimestamp returns whichever of base and local represents the later
// instant. Unparsable values lose to parsable ones; when neither parses,
// or the instants are equal, base wins.
func laterTimestamp(base, local string) string {
	baseT, baseOK := parseTimestamp(base)
	localT, localOK := parseTimestamp(local)

	switch {
	case !baseOK && !localOK:
		return base
	case !localOK:
		return base
	case !baseOK:
		return local
	case localT.After(baseT):
		return local
	default:
		return base
	}
}

// formatTimestamp renders a time the way the incident store does.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
