// Package urlutil joins configured base URLs with paths and queries.
package urlutil

import (
	"net/url"
	"strings"
)

// BuildAbsolute builds an absolute URL from a base origin and a path. A path
// that is already absolute is returned unchanged; a bare query ("?q") is
// attached after a slash.
func BuildAbsolute(base, path string) string {
	base = normalizeBaseURL(base)
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// WithQuery is BuildAbsolute for a single escaped raw query, as disposable
// inboxes address mailboxes ("https://yopmail.com/?name").
func WithQuery(base, rawQuery string) string {
	return BuildAbsolute(base, "?"+url.QueryEscape(rawQuery))
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/")
}
