package goxr

import "path"

// Session is the mutable state of one attempt at one archive. A restart
// from the first volume starts a new one.
type Session struct {
	archive string

	matchCount      int
	firstFile       bool
	signatureSeen   bool
	allMatchesExact bool
	basePath        string
	baseSet         bool
	exactFound      map[string]bool

	passwords *PasswordManager
	stats     Stats

	lastFinalized  string
	extractedFiles int
	overwriteAll   bool
	overwriteNone  bool
	cancelled      bool

	solid         bool
	locked        bool
	multiVolume   bool
	newNumbering  bool
	volumeMissing bool
	volumes       []string
	dirs          []pendingDir
	failures      []*EntryError
	listing       []*FileEntry
	comment       string
}

// pendingDir is a created directory whose times are set once the files
// inside it have been written.
type pendingDir struct {
	path  string
	entry *FileEntry
}

// fail records err against entry e, which may be nil for archive level
// failures.
func (s *Session) fail(kind ErrorKind, e *FileEntry, err error) *EntryError {
	name := ""
	if e != nil {
		name = e.Name
	}
	ee := classify(kind, s.archive, name, err)
	s.stats.fail(ee.Kind)
	s.failures = append(s.failures, ee)
	return ee
}

func newSession(archive string, req *Request, prompter Prompter) *Session {
	return &Session{
		archive:         archive,
		firstFile:       true,
		allMatchesExact: true,
		exactFound:      map[string]bool{},
		passwords:       newPasswordManager(req, prompter),
		stats:           newStats(),
	}
}

// recordMatch folds one match into the session's exactness tracking. The
// strip base is taken from the first exact match only.
func (s *Session) recordMatch(m Match, e *FileEntry, req *Request) {
	if m.Kind == NoMatch {
		return
	}
	s.matchCount++
	s.stats.Matched++
	if m.Kind != ExactRequested || !m.ByteExact {
		s.allMatchesExact = false
		return
	}
	s.exactFound[req.fold(req.Patterns[m.Pattern])] = true
	if req.PathMode == PathStripBase && !s.baseSet {
		s.baseSet = true
		if dir := path.Dir(e.BaseName()); dir != "." && dir != "/" {
			s.basePath = dir
		}
	}
}

// allRequestedFound is true once every requested name, none of them a
// wildcard, has been matched exactly and nothing else has matched.
func (s *Session) allRequestedFound(req *Request) bool {
	if req.Recurse || !s.allMatchesExact || s.matchCount == 0 {
		return false
	}
	want := map[string]bool{}
	for _, p := range req.Patterns {
		if hasWildcard(p) {
			return false
		}
		want[req.fold(p)] = true
	}
	for p := range want {
		if !s.exactFound[p] {
			return false
		}
	}
	return true
}
