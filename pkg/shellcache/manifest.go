package shellcache

import (
	"fmt"
	"strings"
)

// DefaultCachePrefix is the fixed part of every shell cache name.
const DefaultCachePrefix = "fairway-shell"

// RootPath is the shell's root document, used as the offline navigation
// fallback.
const RootPath = "/"

// Manifest is the ordered list of same-origin paths that make up the shell.
type Manifest []string

// DefaultManifest lists the assets the app needs to boot offline.
var DefaultManifest = Manifest{
	RootPath,
	"/styles.css",
	"/app.js",
	"/config.js",
	"/manifest.webmanifest",
}

// Validate checks that every path is an absolute, same-origin path and that
// the root document is part of the shell.
func (m Manifest) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("manifest is empty")
	}

	seen := make(map[string]bool, len(m))
	hasRoot := false
	for _, p := range m {
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return fmt.Errorf("manifest path %q is not a same-origin absolute path", p)
		}
		if seen[p] {
			return fmt.Errorf("manifest path %q is listed twice", p)
		}
		seen[p] = true
		if p == RootPath {
			hasRoot = true
		}
	}
	if !hasRoot {
		return fmt.Errorf("manifest must include the root document %q", RootPath)
	}
	return nil
}

// CacheName returns the versioned store name, e.g. "fairway-shell-v12".
func CacheName(prefix, version string) string {
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return prefix + "-" + version
}
