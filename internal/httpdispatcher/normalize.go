package httpdispatcher

import "strings"

// NormalizePath implements §4.8's normalize_path: lowercase, collapse
// consecutive '/', '_', '.', strip leading/trailing '/', and refuse
// '/.'-style relative escapes. Idempotent: NormalizePath(NormalizePath(s))
// == NormalizePath(s).
func NormalizePath(path string) string {
	path = strings.ToLower(path)
	path = collapseRuns(path, '/')
	path = collapseRuns(path, '_')
	path = collapseRuns(path, '.')
	path = strings.Trim(path, "/")
	for strings.Contains(path, "/./") {
		path = strings.ReplaceAll(path, "/./", "/")
	}
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimSuffix(path, "/.")
	return path
}

func collapseRuns(s string, r byte) string {
	var b strings.Builder
	b.Grow(len(s))
	prevWasR := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == r {
			if prevWasR {
				continue
			}
			prevWasR = true
		} else {
			prevWasR = false
		}
		b.WriteByte(c)
	}
	return b.String()
}
