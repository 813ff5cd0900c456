package goxr

import (
	"strconv"
	"testing"
)

func TestResolve(t *testing.T) {
	file := func(flags HeaderFlags, solid bool) *FileEntry {
		return &FileEntry{Name: "f.txt", blockInfo: blockInfo{Flags: flags}, IsSolidMember: solid}
	}
	exact := Match{Kind: ExactRequested, Pattern: 0, ByteExact: true}
	none := Match{Kind: NoMatch, Pattern: -1}

	tests := []struct {
		name  string
		entry *FileEntry
		match Match
		req   Request
		sig   bool
		want  Decision
	}{
		{"match_extracts", file(0, false), exact, Request{}, false, ExtractFull},
		{"no_match_skips", file(0, false), none, Request{}, false, Skip},
		{"no_match_solid_discards", file(FlagSolid, true), none, Request{}, false, DecodeDiscard},
		{"test_mode", file(0, false), exact, Request{Mode: ModeTest}, false, TestOnly},
		{"continuation_skipped", file(FlagSplitBefore, false), exact, Request{}, false, Skip},
		{"after_signature", file(0, true), exact, Request{}, true, Skip},
		{"directory_match", file(FlagDirectory, false), exact, Request{}, false, ExtractFull},
		{"directory_no_match", file(FlagDirectory, false), none, Request{}, false, Skip},
		{"directory_test", file(FlagDirectory, false), exact, Request{Mode: ModeTest}, false, TestOnly},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req.normalized()
			s := newSession("x.rar", req, nil)
			s.signatureSeen = tc.sig
			if got := Resolve(tc.entry, tc.match, req, s); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveVersions(t *testing.T) {
	versioned := func(rev int, solid bool) *FileEntry {
		return &FileEntry{Name: "v.txt;" + strconv.Itoa(rev), blockInfo: blockInfo{Flags: FlagVersion}, Revision: rev, IsSolidMember: solid}
	}
	wild := Match{Kind: WildcardSubpath, Pattern: 0}

	tests := []struct {
		name  string
		entry *FileEntry
		match Match
		req   Request
		want  Decision
	}{
		{"default_skips", versioned(1, false), wild, Request{}, Skip},
		{"default_solid_discards", versioned(1, true), wild, Request{}, DecodeDiscard},
		{"all", versioned(1, false), wild, Request{Version: VersionPolicy{Mode: VersionAll}}, ExtractFull},
		{"select_hit", versioned(3, false), wild, Request{Version: VersionPolicy{Mode: VersionSelect, Number: 3}}, ExtractFull},
		{"select_miss", versioned(2, false), wild, Request{Version: VersionPolicy{Mode: VersionSelect, Number: 3}}, Skip},
		{"exact_with_suffix", versioned(2, false), Match{Kind: ExactRequested, Pattern: 0}, Request{Patterns: []string{"v.txt;2"}}, ExtractFull},
		{"exact_base_name", versioned(2, false), Match{Kind: ExactRequested, Pattern: 0}, Request{Patterns: []string{"v.txt"}}, Skip},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req.normalized()
			s := newSession("x.rar", req, nil)
			if got := Resolve(tc.entry, tc.match, req, s); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveAfterAllFound(t *testing.T) {
	req := Request{Patterns: []string{"a.txt"}}.normalized()
	s := newSession("x.rar", req, nil)
	a := &FileEntry{Name: "a.txt"}
	m := Classify(a.Name, req)
	if d := Resolve(a, m, req, s); d != ExtractFull {
		t.Fatalf("first: %v", d)
	}
	s.recordMatch(m, a, req)
	again := &FileEntry{Name: "a.txt"}
	if d := Resolve(again, Classify(again.Name, req), req, s); d != Skip {
		t.Fatalf("after all found: %v", d)
	}
}
