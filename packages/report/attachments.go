package report

import (
	"path/filepath"
	"strings"
)

// Attachment is an artifact handed to the notifiers
type Attachment struct {
	Name        string
	Path        string
	ContentType string
}

var contentTypes = map[string]string{
	".json": "application/json",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
}

// Attachments packages artifact paths in the given order. Empty and repeated
// paths are dropped.
func Attachments(paths ...string) []Attachment {
	seen := make(map[string]bool, len(paths))
	var out []Attachment
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true

		ct, ok := contentTypes[strings.ToLower(filepath.Ext(p))]
		if !ok {
			ct = "application/octet-stream"
		}
		out = append(out, Attachment{
			Name:        filepath.Base(p),
			Path:        p,
			ContentType: ct,
		})
	}
	return out
}
