package goxr

import (
	"path"
	"strings"
)

type MatchKind int

const (
	NoMatch MatchKind = iota
	WildcardSubpath
	ExactRequested
)

func (k MatchKind) String() string {
	switch k {
	case WildcardSubpath:
		return "wildcard"
	case ExactRequested:
		return "exact"
	}
	return "none"
}

// Match is the outcome of Classify. ByteExact is set when an exact
// match also equals the stored name byte for byte.
type Match struct {
	Kind      MatchKind
	Pattern   int
	ByteExact bool
}

func hasWildcard(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// literalPrefix is how much of the pattern precedes its first wildcard.
func literalPrefix(p string) int {
	if i := strings.IndexAny(p, "*?["); i >= 0 {
		return i
	}
	return len(p)
}

// Classify matches name against the request's patterns. Excludes win
// over everything. The first exact pattern in request order wins;
// otherwise the wildcard with the longest literal prefix, then the
// earliest one.
func Classify(name string, req *Request) Match {
	folded := req.fold(name)
	if req.ArcPath != "" && !hasPathPrefix(folded, req.fold(req.ArcPath)) {
		return Match{Kind: NoMatch, Pattern: -1}
	}
	for _, ex := range req.Excludes {
		if _, ok := wildcardMatch(req.fold(ex), folded, true); ok {
			return Match{Kind: NoMatch, Pattern: -1}
		}
	}

	best := Match{Kind: NoMatch, Pattern: -1}
	bestPrefix := -1
	for i, raw := range req.Patterns {
		p := req.fold(raw)
		if !hasWildcard(p) {
			if folded == p {
				return Match{Kind: ExactRequested, Pattern: i, ByteExact: name == raw}
			}
			if strings.HasPrefix(folded, p+"/") && len(p) > bestPrefix {
				best, bestPrefix = Match{Kind: WildcardSubpath, Pattern: i}, len(p)
			}
			continue
		}
		if prefix, ok := wildcardMatch(p, folded, req.Recurse); ok && prefix > bestPrefix {
			best, bestPrefix = Match{Kind: WildcardSubpath, Pattern: i}, prefix
		}
	}
	return best
}

// wildcardMatch tries the pattern against the whole name. When recursing
// it also tries the base name for a pattern without a directory part,
// then every parent directory.
func wildcardMatch(p, name string, recurse bool) (int, bool) {
	prefix := literalPrefix(p)
	if ok, _ := path.Match(p, name); ok {
		return prefix, true
	}
	if !recurse {
		return 0, false
	}
	if !strings.Contains(p, "/") {
		if ok, _ := path.Match(p, path.Base(name)); ok {
			return prefix, true
		}
	}
	for i := len(name) - 1; i > 0; i-- {
		if name[i] != '/' {
			continue
		}
		if ok, _ := path.Match(p, name[:i]); ok {
			return prefix, true
		}
	}
	return 0, false
}
