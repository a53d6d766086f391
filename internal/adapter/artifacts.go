package adapter

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeName reduces value to characters usable in a file name
func SafeName(value string) string {
	s := strings.Trim(unsafeName.ReplaceAllString(value, "-"), "-")
	if s == "" {
		return "item"
	}
	return s
}

// ArtifactName is the file prefix for debug dumps of one failed attempt,
// e.g. 20250101T120000Z-sync-sources-attempt2
func ArtifactName(now time.Time, op string, attempt int) string {
	return now.UTC().Format("20060102T150405Z") + "-" + SafeName(op) + "-attempt" + strconv.Itoa(attempt)
}
