package shared

import (
	"path/filepath"
	"strings"
)

// SafeFilename strips directories and characters that would break a
// Content-Disposition header.
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == ';' || r < 0x20 || r == 0x7f:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}
