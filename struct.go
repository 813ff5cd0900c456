package goxr

import (
	"strconv"
	"strings"
	"time"
)

// BlockHeader is one parsed block: *FileEntry, *EndOfArchive,
// *SignatureBlock, *SubBlock or *ExtSubBlock.
type BlockHeader interface {
	block() *blockInfo
}

// blockInfo is the common part of every block.
type blockInfo struct {
	Type     uint8
	Flags    HeaderFlags
	HeadSize uint16
	DataSize int64
	Pos      int64
}

func (b *blockInfo) block() *blockInfo { return b }

type FileEntry struct {
	blockInfo
	Name         string
	PackedSize   int64
	UnpackedSize int64
	HostOS       uint8
	FileCRC      uint32
	UnpVer       uint8
	Method       uint8
	Attr         uint32
	Salt         []byte
	MTime        time.Time
	CTime        time.Time
	ATime        time.Time

	// IsSolidMember is set when the entry's bytes run through the
	// archive's shared decoder state.
	IsSolidMember bool
	// Revision is the N of a "name;N" versioned entry.
	Revision int
}

func (e *FileEntry) HasPassword() bool { return e.Flags.IsSet(FlagPassword) }
func (e *FileEntry) SplitBefore() bool { return e.Flags.IsSet(FlagSplitBefore) }
func (e *FileEntry) SplitAfter() bool  { return e.Flags.IsSet(FlagSplitAfter) }
func (e *FileEntry) IsVersioned() bool { return e.Flags.IsSet(FlagVersion) }
func (e *FileEntry) HasSalt() bool     { return e.Flags.IsSet(FlagSalt) }
func (e *FileEntry) IsDirectory() bool { return e.Flags.IsSet(FlagDirectory) }
func (e *FileEntry) HasExtTime() bool  { return e.Flags.IsSet(FlagExtTime) }
func (e *FileEntry) IsUnicode() bool   { return e.Flags.IsSet(FlagUnicode) }
func (e *FileEntry) IsLarge() bool     { return e.Flags.IsSet(FlagLarge) }
func (e *FileEntry) IsStored() bool    { return e.Method == methodStore }

// ContinuesSolid reports whether decoding resumes the state left by the
// previous member.
func (e *FileEntry) ContinuesSolid() bool { return e.Flags.IsSet(FlagSolid) }

// BaseName is the entry name without a ";N" revision suffix.
func (e *FileEntry) BaseName() string {
	if !e.IsVersioned() {
		return e.Name
	}
	if i := strings.LastIndexByte(e.Name, ';'); i > 0 {
		return e.Name[:i]
	}
	return e.Name
}

func parseRevision(name string) int {
	i := strings.LastIndexByte(name, ';')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type EndOfArchive struct {
	blockInfo
	NextVolume   bool
	HasDataCRC   bool
	DataCRC      uint32
	VolumeNumber int
}

// SignatureBlock is an authenticity or signature block. Entries after it
// are not processed.
type SignatureBlock struct {
	blockInfo
}

// SubBlock covers old style comment, sub and recovery blocks, and unknown
// blocks that carry a length.
type SubBlock struct {
	blockInfo
}

// ExtSubBlock is a service block in file header layout, such as CMT, RR
// or AV.
type ExtSubBlock struct {
	blockInfo
	SubType    string
	PackedSize int64
}
