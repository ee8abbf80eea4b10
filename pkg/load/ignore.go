package load

import (
	"bufio"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// DefaultIgnoreFile is read from the root of a scanned tree.
const DefaultIgnoreFile = ".agmdignore"

type pattern struct {
	glob     string
	anchored bool
	dirOnly  bool
}

// Ignore is a parsed ignore file: one glob per line, '#' starts a comment.
// A trailing '/' restricts a pattern to directories. A pattern containing
// '/' is matched against the whole path from the root, any other pattern
// against the base name.
type Ignore struct {
	patterns []pattern
}

// ParseIgnore reads ignore patterns from r. Negated patterns are not
// supported and are skipped.
func ParseIgnore(r io.Reader) (*Ignore, error) {
	ig := &Ignore{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		var p pattern
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		if strings.Contains(line, "/") {
			p.anchored = true
			line = strings.TrimPrefix(line, "/")
		}
		if _, err := path.Match(line, ""); err != nil {
			return nil, errors.Wrapf(err, "ignore pattern %q", scanner.Text())
		}
		p.glob = line
		ig.patterns = append(ig.patterns, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ig, nil
}

// Match reports whether the slash separated path rel, relative to the root,
// is ignored.
func (ig *Ignore) Match(rel string, dir bool) bool {
	if ig == nil {
		return false
	}
	for _, p := range ig.patterns {
		if p.dirOnly && !dir {
			continue
		}
		name := path.Base(rel)
		if p.anchored {
			name = rel
		}
		if ok, _ := path.Match(p.glob, name); ok {
			return true
		}
	}
	return false
}
