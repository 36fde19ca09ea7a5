// Package remotepath composes remote paths from a configured root and
// sub-paths given by callers.
//
// Sub-paths are always relative to the root: a leading slash is stripped
// rather than treated as absolute. Directory paths carry a trailing slash,
// file paths never do.
package remotepath

import (
	"path"
	"strings"
)

// Normalize converts a caller supplied sub-path to canonical relative form:
// forward slashes only, no leading or trailing slash, no "." or empty
// elements. The root itself normalizes to "". A sub-path climbing above the
// root keeps its leading ".." so callers can reject it.
//
// Normalize(Normalize(p)) == Normalize(p) for every p.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// Root canonicalizes the configured root: a leading slash, no trailing slash
// (except for "/" itself).
func Root(root string) string {
	root = strings.ReplaceAll(root, "\\", "/")
	root = path.Clean("/" + root)
	return root
}

// IsRoot reports whether sub resolves to the root itself.
func IsRoot(sub string) bool {
	return Normalize(sub) == ""
}

// EscapesRoot reports whether sub points above the root.
func EscapesRoot(sub string) bool {
	n := Normalize(sub)
	return n == ".." || strings.HasPrefix(n, "../")
}

// File joins root and sub as a file path: exactly one separator between
// them and no trailing slash.
func File(root, sub string) string {
	r := Root(root)
	n := Normalize(sub)
	if n == "" {
		return r
	}
	if r == "/" {
		return "/" + n
	}
	return r + "/" + n
}

// Dir joins root and sub as a directory path, always ending in a slash.
func Dir(root, sub string) string {
	p := File(root, sub)
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// Parent returns the normalized parent of sub; the root's parent is the root.
func Parent(sub string) string {
	n := Normalize(sub)
	i := strings.LastIndex(n, "/")
	if i < 0 {
		return ""
	}
	return n[:i]
}

// Base returns the leaf name of sub.
func Base(sub string) string {
	n := Normalize(sub)
	return n[strings.LastIndex(n, "/")+1:]
}

// Join appends elem to the sub-path sub.
func Join(sub, elem string) string {
	return Normalize(Normalize(sub) + "/" + elem)
}

// Ancestors lists sub and each of its ancestors, leaf first, excluding the
// root. "a/b/c" yields ["a/b/c", "a/b", "a"].
func Ancestors(sub string) []string {
	n := Normalize(sub)
	var chain []string
	for n != "" {
		chain = append(chain, n)
		n = Parent(n)
	}
	return chain
}
