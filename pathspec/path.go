package pathspec

import (
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
)

// ExpandTilde replaces a leading "~/" (or a bare "~") with $HOME, per
// spec.md §6. Any other use of '~' is left untouched.
func ExpandTilde(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		return homedir.Expand(path)
	}
	return path, nil
}

// ResolveDest implements the "classic cp semantics" trailing-slash rule: if
// dst ends with '/', the source's basename is appended.
func ResolveDest(src, dst string) string {
	if strings.HasSuffix(dst, "/") {
		return filepath.Join(dst, filepath.Base(src))
	}
	return dst
}
