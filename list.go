package goxr

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"goxr/internal/codec"
)

type ListEntryOut struct {
	Path        string   `json:"path"`
	Type        string   `json:"type"`
	Size        int64    `json:"size"`
	Packed      int64    `json:"packed"`
	Attributes  string   `json:"attributes"`
	ModTime     int64    `json:"modTime"`
	CRC         string   `json:"crc,omitempty"`
	Compression string   `json:"compression,omitempty"`
	Host        string   `json:"host"`
	Revision    int      `json:"revision,omitempty"`
	Flags       []string `json:"flags,omitempty"`
}

type ArchiveListingOut struct {
	Archive string         `json:"archive"`
	Solid   bool           `json:"solid"`
	Volumes []string       `json:"volumes,omitempty"`
	Locked  bool           `json:"locked,omitempty"`
	Comment string         `json:"comment,omitempty"`
	Files   []ListEntryOut `json:"files"`
}

// lister renders ModeListOnly output. Text formats are written per
// archive; JSON is collected and written by flush.
type lister struct {
	out     io.Writer
	format  ListFormat
	verbose bool
	json    []ArchiveListingOut
}

func newLister(out io.Writer, format ListFormat, verbose bool) *lister {
	return &lister{out: out, format: format, verbose: verbose}
}

func entryType(e *FileEntry) string {
	if e.IsDirectory() {
		return "dir"
	}
	return "file"
}

func compressionName(e *FileEntry) string {
	if e.IsDirectory() {
		return ""
	}
	if e.IsStored() {
		return "stored"
	}
	return codec.Name(e.UnpVer)
}

// attrString renders the attribute word the way its host would.
func attrString(e *FileEntry) string {
	switch e.HostOS {
	case HostUnix, HostBeOS:
		mode := os.FileMode(e.Attr & 0o777)
		if e.Attr&0o170000 == 0o040000 || e.IsDirectory() {
			mode |= os.ModeDir
		}
		return mode.String()
	}
	bits := []struct {
		mask   uint32
		letter byte
	}{{0x10, 'D'}, {0x01, 'R'}, {0x02, 'H'}, {0x04, 'S'}, {0x20, 'A'}}
	out := []byte(".....")
	for i, b := range bits {
		if e.Attr&b.mask != 0 {
			out[i] = b.letter
		}
	}
	if e.IsDirectory() {
		out[0] = 'D'
	}
	return string(out)
}

func ratio(e *FileEntry) string {
	if e.UnpackedSize == 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", e.PackedSize*100/e.UnpackedSize)
}

func (l *lister) archive(s *Session) {
	switch l.format {
	case ListJSON:
		l.json = append(l.json, listingOut(s))
	case ListBare:
		for _, e := range s.listing {
			fmt.Fprintln(l.out, e.Name)
		}
	case ListTechnical:
		l.technical(s)
	default:
		l.table(s)
	}
}

func (l *lister) header(s *Session) {
	kind := "RAR archive"
	if s.multiVolume {
		kind = "RAR volume set"
	}
	fmt.Fprintf(l.out, "\n%v: %v\n", kind, s.archive)
	if s.comment != "" {
		fmt.Fprintf(l.out, "%v\n", s.comment)
	}
}

func (l *lister) table(s *Session) {
	l.header(s)
	table := tablewriter.NewWriter(l.out)
	cols := []string{"Attributes", "Size", "Packed", "Ratio", "Modified", "Name"}
	if l.verbose {
		cols = []string{"Attributes", "Size", "Packed", "Ratio", "Modified", "CRC", "Method", "Flags", "Name"}
	}
	table.SetHeader(cols)
	var size, packed int64
	files := 0
	for _, e := range s.listing {
		mod := e.MTime.Format("2006-01-02 15:04")
		row := []string{attrString(e), humanize.Bytes(uint64(e.UnpackedSize)), humanize.Bytes(uint64(e.PackedSize)), ratio(e), mod, e.Name}
		if l.verbose {
			row = []string{attrString(e), humanize.Bytes(uint64(e.UnpackedSize)), humanize.Bytes(uint64(e.PackedSize)), ratio(e), mod,
				fmt.Sprintf("%08X", e.FileCRC), compressionName(e), flagLetters(e), e.Name}
		}
		table.Append(row)
		if !e.IsDirectory() {
			files++
			size += e.UnpackedSize
			packed += e.PackedSize
		}
	}
	table.Render()
	fmt.Fprintf(l.out, "%v files, %v (%v packed)\n", files, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(packed)))
}

func (l *lister) technical(s *Session) {
	l.header(s)
	for _, e := range s.listing {
		fmt.Fprintf(l.out, "\n        Name: %v\n", e.Name)
		fmt.Fprintf(l.out, "        Type: %v\n", entryType(e))
		fmt.Fprintf(l.out, "        Size: %v\n", e.UnpackedSize)
		fmt.Fprintf(l.out, " Packed size: %v\n", e.PackedSize)
		fmt.Fprintf(l.out, "       Ratio: %v\n", ratio(e))
		fmt.Fprintf(l.out, "       mtime: %v\n", e.MTime.Format("2006-01-02 15:04:05.000000000"))
		if !e.CTime.IsZero() {
			fmt.Fprintf(l.out, "       ctime: %v\n", e.CTime.Format("2006-01-02 15:04:05.000000000"))
		}
		if !e.ATime.IsZero() {
			fmt.Fprintf(l.out, "       atime: %v\n", e.ATime.Format("2006-01-02 15:04:05.000000000"))
		}
		fmt.Fprintf(l.out, "  Attributes: %v\n", attrString(e))
		fmt.Fprintf(l.out, "       CRC32: %08X\n", e.FileCRC)
		fmt.Fprintf(l.out, "     Host OS: %v\n", hostName(e.HostOS))
		if c := compressionName(e); c != "" {
			fmt.Fprintf(l.out, " Compression: %v\n", c)
		}
		if flags := fileFlagList(e.Flags); len(flags) > 0 {
			fmt.Fprintf(l.out, "       Flags: %v\n", strings.Join(flags, " "))
		}
	}
}

func listingOut(s *Session) ArchiveListingOut {
	out := ArchiveListingOut{
		Archive: s.archive,
		Solid:   s.solid,
		Locked:  s.locked,
		Comment: s.comment,
		Files:   []ListEntryOut{},
	}
	if s.multiVolume {
		out.Volumes = s.volumes
	}
	for _, e := range s.listing {
		item := ListEntryOut{
			Path:        e.Name,
			Type:        entryType(e),
			Size:        e.UnpackedSize,
			Packed:      e.PackedSize,
			Attributes:  attrString(e),
			ModTime:     e.MTime.Unix(),
			Compression: compressionName(e),
			Host:        hostName(e.HostOS),
			Revision:    e.Revision,
			Flags:       fileFlagList(e.Flags),
		}
		if !e.IsDirectory() {
			item.CRC = fmt.Sprintf("%08x", e.FileCRC)
		}
		out.Files = append(out.Files, item)
	}
	return out
}

// flush writes collected JSON listings: one object for one archive, an
// array otherwise.
func (l *lister) flush() error {
	if l.format != ListJSON {
		return nil
	}
	enc := json.NewEncoder(l.out)
	enc.SetIndent("", "  ")
	if len(l.json) == 1 {
		return enc.Encode(l.json[0])
	}
	if l.json == nil {
		l.json = []ArchiveListingOut{}
	}
	return enc.Encode(l.json)
}
