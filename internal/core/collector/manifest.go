package collector

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Ning0612/nbsync/internal/domain"
)

// ReadManifest returns the file paths listed in a manifest.
// Accepted forms: a JSON array, a JSON object with a "files" array, or
// newline-delimited text where blank and '#' lines are ignored.
func ReadManifest(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.Validationf("manifest file not found: %s", path)
		}
		return nil, domain.Validationf("cannot read manifest %s: %v", path, err)
	}
	return ParseManifest(string(data)), nil
}

// ParseManifest parses manifest content, see ReadManifest
func ParseManifest(text string) []string {
	if gjson.Valid(text) {
		doc := gjson.Parse(text)
		switch {
		case doc.IsArray():
			return jsonStrings(doc)
		case doc.IsObject() && doc.Get("files").IsArray():
			return jsonStrings(doc.Get("files"))
		}
	}

	var paths []string
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		paths = append(paths, s)
	}
	return paths
}

func jsonStrings(arr gjson.Result) []string {
	var out []string
	arr.ForEach(func(_, item gjson.Result) bool {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}
