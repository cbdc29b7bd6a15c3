package ratelimit

import "strings"

// sanitizeKey escapes the separator characters so a hostile subject
// identifier cannot collide with another key or smuggle a path segment into
// the store. '_' is the escape character and must be escaped first.
func sanitizeKey(raw string) string {
	s := strings.ReplaceAll(raw, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	s = strings.ReplaceAll(s, "/", "_s")
	return s
}

// recordID builds the document ID for one (limit, subject) pair.
func recordID(limitName, key string) string {
	return sanitizeKey(limitName) + ":" + sanitizeKey(key)
}
