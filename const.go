package goxr

const (
	readBuffer  = 1000 * 1000 * 1 //MiB
	writeBuffer = readBuffer

	// markerSearchLimit bounds the scan for the marker block so
	// self-extracting stubs can precede it.
	markerSearchLimit = 1 << 20
	blockHeadSize     = 7
	mainHeadSize      = 13
	fileHeadFixed     = 25
	saltSize          = 8
	methodStore       = 0x30
)

var (
	rar4Marker = []byte("Rar!\x1a\x07\x00")
	rar5Marker = []byte("Rar!\x1a\x07\x01\x00")
	rar14Mark  = []byte("RE~^")
)

// Block types
const (
	blockMark uint8 = 0x72 + iota
	blockMain
	blockFile
	blockComment
	blockAV
	blockSub
	blockProtect
	blockSign
	blockNewSub
	blockEnd
)

// Flags shared by all blocks
const (
	flagSkipIfUnknown HeaderFlags = 0x4000
	flagLongBlock     HeaderFlags = 0x8000
)

// Main header flags
const (
	mainVolume HeaderFlags = 1 << iota
	mainComment
	mainLock
	mainSolid
	mainNewNumbering
	mainAuthenticity
	mainProtect
	mainPassword
	mainFirstVolume
)

// File header flags
const (
	FlagSplitBefore HeaderFlags = 0x0001
	FlagSplitAfter  HeaderFlags = 0x0002
	FlagPassword    HeaderFlags = 0x0004
	FlagComment     HeaderFlags = 0x0008
	FlagSolid       HeaderFlags = 0x0010
	FlagDirectory   HeaderFlags = 0x00e0
	FlagLarge       HeaderFlags = 0x0100
	FlagUnicode     HeaderFlags = 0x0200
	FlagSalt        HeaderFlags = 0x0400
	FlagVersion     HeaderFlags = 0x0800
	FlagExtTime     HeaderFlags = 0x1000
)

// End of archive flags
const (
	endNextVolume HeaderFlags = 1 << iota
	endDataCRC
	endRevSpace
	endVolNumber
)

// Host systems
const (
	HostMSDOS uint8 = iota
	HostOS2
	HostWin32
	HostUnix
	HostMacOS
	HostBeOS
)

var hostNames = []string{"MS-DOS", "OS/2", "Windows", "Unix", "Mac OS", "BeOS"}

var (
	fileFlagValues = []HeaderFlags{FlagSplitBefore, FlagSplitAfter, FlagPassword, FlagComment, FlagSolid, FlagLarge, FlagUnicode, FlagSalt, FlagVersion, FlagExtTime}
	fileFlagNames  = []string{"Split Before", "Split After", "Password", "Comment", "Solid", "Large", "Unicode", "Salt", "Version", "Ext Time"}
)

func hostName(host uint8) string {
	if int(host) < len(hostNames) {
		return hostNames[host]
	}
	return "Unknown"
}
