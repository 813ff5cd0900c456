package goxr

import "strings"

type Decision int

const (
	Skip Decision = iota
	ExtractFull
	DecodeDiscard
	TestOnly
)

var decisionNames = []string{"skip", "extract", "discard", "test"}

func (d Decision) String() string {
	if int(d) < len(decisionNames) {
		return decisionNames[d]
	}
	return "unknown"
}

// classifyEntry matches the full stored name first, then the name
// without its revision suffix.
func classifyEntry(e *FileEntry, req *Request) Match {
	m := Classify(e.Name, req)
	if e.IsVersioned() && m.Kind != ExactRequested {
		m = Classify(e.BaseName(), req)
	}
	return m
}

// Resolve decides what to do with a file entry.
func Resolve(e *FileEntry, m Match, req *Request, s *Session) Decision {
	if s.signatureSeen || s.allRequestedFound(req) {
		return Skip
	}
	// A continuation reached by the header loop has no decodable start
	if e.SplitBefore() {
		return Skip
	}
	if e.IsDirectory() {
		switch {
		case m.Kind == NoMatch:
			return Skip
		case req.Mode == ModeTest:
			return TestOnly
		}
		return ExtractFull
	}
	if m.Kind == NoMatch {
		return demoted(e)
	}
	if e.IsVersioned() && !versionAllowed(e, m, req) {
		return demoted(e)
	}
	if req.Mode == ModeTest {
		return TestOnly
	}
	return ExtractFull
}

// demoted is the decision for an entry that will not be written. Solid
// members still have to run through the decoder.
func demoted(e *FileEntry) Decision {
	if e.IsSolidMember {
		return DecodeDiscard
	}
	return Skip
}

func versionAllowed(e *FileEntry, m Match, req *Request) bool {
	switch req.Version.Mode {
	case VersionAll:
		return true
	case VersionSelect:
		return e.Revision == req.Version.Number
	}
	return m.Kind == ExactRequested && strings.Contains(req.Patterns[m.Pattern], ";")
}
