package goxr

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// Stats counts what happened to the entries of one archive attempt, or
// of a whole run once attempts are merged.
type Stats struct {
	Archives     int
	Seen         int
	Matched      int
	Extracted    int
	Tested       int
	Skipped      int
	Discarded    int
	Directories  int
	BytesWritten int64
	Warnings     int
	Errors       [kindCount]int
}

func newStats() Stats {
	return Stats{}
}

func (s *Stats) add(o Stats) {
	s.Archives += o.Archives
	s.Seen += o.Seen
	s.Matched += o.Matched
	s.Extracted += o.Extracted
	s.Tested += o.Tested
	s.Skipped += o.Skipped
	s.Discarded += o.Discarded
	s.Directories += o.Directories
	s.BytesWritten += o.BytesWritten
	s.Warnings += o.Warnings
	for k := range s.Errors {
		s.Errors[k] += o.Errors[k]
	}
}

func (s *Stats) fail(kind ErrorKind) {
	if kind > KindNone && kind < kindCount {
		s.Errors[kind]++
	}
}

// ErrorCount is the number of failures of any kind. A cancelled password
// prompt is a clean stop and does not count.
func (s *Stats) ErrorCount() int {
	n := 0
	for k, c := range s.Errors {
		if ErrorKind(k) != KindPasswordCancelled {
			n += c
		}
	}
	return n
}

// Result is the outcome of a run.
type Result struct {
	Stats
	// Failures holds one error per failed entry or archive, in order.
	Failures []*EntryError
	// Break is set when the run was interrupted by the caller.
	Break bool
}

// ExitCode is 0 for a clean run, 1 when anything warned or failed and
// 255 for a user break.
func (r *Result) ExitCode() int {
	switch {
	case r.Break:
		return 255
	case r.ErrorCount() > 0 || r.Warnings > 0:
		return 1
	}
	return 0
}

// Summary writes the human readable run totals.
func (r *Result) Summary(w io.Writer, mode Mode) {
	switch mode {
	case ModeTest:
		fmt.Fprintf(w, "%v files tested, %v\n", r.Tested, humanize.Bytes(uint64(r.BytesWritten)))
	case ModeListOnly:
		return
	default:
		fmt.Fprintf(w, "%v files, %v directories extracted, %v\n", r.Extracted, r.Directories, humanize.Bytes(uint64(r.BytesWritten)))
	}
	if r.Skipped > 0 || r.Discarded > 0 {
		fmt.Fprintf(w, "%v of %v entries matched, %v skipped, %v decoded and discarded\n", r.Matched, r.Seen, r.Skipped, r.Discarded)
	}
	var parts []string
	for k, c := range r.Errors {
		if c > 0 {
			parts = append(parts, fmt.Sprintf("%v: %v", ErrorKind(k), c))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "errors: %s\n", strings.Join(parts, ", "))
	}
	if r.Warnings > 0 {
		fmt.Fprintf(w, "%v warnings\n", r.Warnings)
	}
}
