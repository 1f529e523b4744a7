package normalize

import (
	"path"
	"strings"
)

// Path maps a request path to the rooted form used for route matching.
// Backslashes count as separators, dot segments never climb above the root
// and a trailing slash is kept.
func Path(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	trailing := strings.HasSuffix(p, "/")

	cleaned := path.Clean("/" + p)
	if trailing && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}
