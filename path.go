package mapping

import (
	"sort"
	"strings"
)

// joinPath appends a child name to a dotted path.
func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// parentPath returns the dotted path of the object containing path, and
// the last name on it.
func parentPath(path string) (string, string) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func validName(name string) bool {
	return name != "" && !strings.ContainsRune(name, '.') && strings.TrimSpace(name) == name
}

// searchNames finds the position of name in a slice of children ordered by
// name, as sort.Search does.
func searchNames(n int, nameAt func(int) string, name string) (int, bool) {
	if n > 0 && nameAt(n-1) < name {
		// optimizing for names appended in order
		return n, false
	}
	i := sort.Search(n, func(i int) bool { return nameAt(i) >= name })
	return i, i < n && nameAt(i) == name
}
