package goxr

import (
	"path"
	"path/filepath"
	"runtime"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
)

// Destination is where one entry goes. Rel is the archive-relative part
// after all stripping; Previous is the last path actually finalized.
type Destination struct {
	Path     string
	Rel      string
	TestOnly bool
	Discard  bool
	Previous string
}

type PathBuilder struct {
	driveLetters bool
	log          *logger
}

func newPathBuilder(log *logger) *PathBuilder {
	return &PathBuilder{driveLetters: runtime.GOOS == "windows", log: log}
}

// stripDir removes dir from the front of name when name lies below it.
func stripDir(name, dir string, caseSensitive bool) (string, bool) {
	if len(name) < len(dir) {
		return name, false
	}
	head := name[:len(dir)]
	same := head == dir || !caseSensitive && strings.EqualFold(head, dir)
	if !same {
		return name, false
	}
	if len(name) == len(dir) {
		return "", true
	}
	if name[len(dir)] != '/' {
		return name, false
	}
	return name[len(dir)+1:], true
}

func archiveStem(archive string) string {
	b := filepath.Base(archive)
	b = strings.TrimSuffix(b, filepath.Ext(b))
	if ext := filepath.Ext(b); strings.HasPrefix(strings.ToLower(ext), ".part") {
		b = strings.TrimSuffix(b, ext)
	}
	return b
}

func escapes(rel string) bool {
	if path.IsAbs(rel) {
		return true
	}
	c := path.Clean(rel)
	return c == ".." || strings.HasPrefix(c, "../")
}

// Build derives the destination of e from the request and the session's
// strip state.
func (pb *PathBuilder) Build(e *FileEntry, req *Request, s *Session, d Decision) (Destination, error) {
	dest := Destination{TestOnly: d == TestOnly, Previous: s.lastFinalized}

	name := e.Name
	if e.IsVersioned() && req.Version.Mode != VersionAll {
		name = e.BaseName()
	}
	if req.ArcPath != "" {
		if r, ok := stripDir(name, req.ArcPath, req.CaseSensitive); ok {
			name = r
		}
	}

	rel := name
	switch {
	case req.Flatten || req.PathMode == PathStripAll:
		rel = path.Base(name)
	case req.PathMode == PathStripBase && s.allMatchesExact && s.basePath != "":
		if r, ok := stripDir(name, s.basePath, req.CaseSensitive); ok {
			rel = r
		}
	}
	if req.AppendArcName {
		rel = path.Join(archiveStem(s.archive), rel)
	}
	dest.Rel = rel

	if req.PathMode == PathAbsolute {
		dest.Path = pb.absolute(rel)
		return dest, nil
	}
	p, err := securejoin.SecureJoin(req.Dest, filepath.FromSlash(rel))
	if err != nil {
		return dest, errors.Wrap(ErrDestinationCreateFailed, err.Error())
	}
	if escapes(rel) {
		pb.log.warn("%v: path leaves the destination, writing to %v", e.Name, p)
	}
	dest.Path = p
	return dest, nil
}

// absolute turns a stored name into a filesystem path of its own. A
// leading "C_" segment becomes a drive letter where drives exist.
func (pb *PathBuilder) absolute(rel string) string {
	first, rest, _ := strings.Cut(rel, "/")
	if pb.driveLetters && len(first) == 2 && first[1] == '_' && isLetter(first[0]) {
		return filepath.FromSlash(first[:1] + ":/" + path.Clean("/" + rest)[1:])
	}
	return filepath.FromSlash(path.Clean("/" + rel))
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
