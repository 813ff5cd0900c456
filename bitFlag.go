package goxr

type HeaderFlags uint16

// IsSet checks if the specified bit(s) are set.
func (f HeaderFlags) IsSet(flag HeaderFlags) bool {
	return f&flag == flag
}

// fileFlagList returns the human-readable names of the file header flags
// present in flags.
func fileFlagList(flags HeaderFlags) []string {
	var out []string
	for i, v := range fileFlagValues {
		if flags.IsSet(v) {
			out = append(out, fileFlagNames[i])
		}
	}
	return out
}

// flagLetters is the compact form used in the attribute column of
// listings.
func flagLetters(e *FileEntry) string {
	out := ""
	if e.HasPassword() {
		out += "*"
	}
	if e.SplitBefore() {
		out += "<"
	}
	if e.SplitAfter() {
		out += ">"
	}
	if e.IsSolidMember {
		out += "s"
	}
	if e.IsVersioned() {
		out += "v"
	}
	return out
}
