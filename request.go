package goxr

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

type Mode int

const (
	ModeExtract Mode = iota
	ModeTest
	ModePrintToStream
	ModeListOnly
)

var modeNames = []string{"extract", "test", "print", "list"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// verb is the heading word of the mode in progress output.
func (m Mode) verb() string {
	switch m {
	case ModeTest:
		return "Testing"
	case ModePrintToStream:
		return "Printing"
	case ModeListOnly:
		return "Listing"
	}
	return "Extracting from"
}

type PathMode int

const (
	// PathKeep keeps the stored sub-path.
	PathKeep PathMode = iota
	// PathStripAll keeps only the final name component.
	PathStripAll
	// PathStripBase strips the directory of exactly requested names.
	PathStripBase
	// PathAbsolute extracts to the stored path itself, not below Dest.
	PathAbsolute
)

type OverwriteMode int

const (
	OverwritePrompt OverwriteMode = iota
	OverwriteAlways
	OverwriteNever
)

type VersionMode int

const (
	// VersionDefault skips "name;N" entries unless requested by exact
	// name.
	VersionDefault VersionMode = iota
	// VersionAll extracts every revision and keeps the suffix.
	VersionAll
	// VersionSelect extracts revision Number only, without the suffix.
	VersionSelect
)

type VersionPolicy struct {
	Mode   VersionMode
	Number int
}

type ListFormat int

const (
	ListTable ListFormat = iota
	ListTechnical
	ListJSON
	ListBare
)

// Request describes one run. It is not modified once Extract starts.
type Request struct {
	Archives []string

	Patterns      []string
	Excludes      []string
	Recurse       bool
	CaseSensitive bool

	Dest          string
	ArcPath       string
	PathMode      PathMode
	AppendArcName bool
	// Flatten is extract-here: every file lands directly in Dest.
	Flatten bool

	Mode        Mode
	Freshen     bool
	Update      bool
	Overwrite   OverwriteMode
	Password    string
	HasPassword bool
	Version     VersionPolicy
	KeepBroken  bool
	NameCharset encoding.Encoding
	ListFormat  ListFormat
}

func normalizePattern(p string) string {
	p = strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
	p = strings.TrimPrefix(p, "./")
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// normalized returns a copy with cleaned patterns and defaults filled in.
func (r Request) normalized() *Request {
	out := r
	out.Patterns = make([]string, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		if p = normalizePattern(p); p != "" {
			out.Patterns = append(out.Patterns, p)
		}
	}
	out.Excludes = make([]string, 0, len(r.Excludes))
	for _, p := range r.Excludes {
		if p = normalizePattern(p); p != "" {
			out.Excludes = append(out.Excludes, p)
		}
	}
	if len(out.Patterns) == 0 {
		out.Patterns = []string{"*"}
		out.Recurse = true
	}
	out.ArcPath = strings.Trim(normalizePattern(r.ArcPath), "/")
	if out.Dest == "" {
		out.Dest = "."
	}
	if out.NameCharset == nil {
		out.NameCharset = charmap.CodePage437
	}
	if r.Password != "" {
		out.HasPassword = true
	}
	return &out
}

func (r *Request) fold(s string) string {
	if r.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// hasPathPrefix reports whether name is dir or lies below it.
func hasPathPrefix(name, dir string) bool {
	if dir == "" {
		return true
	}
	return name == dir || strings.HasPrefix(name, dir+"/")
}
