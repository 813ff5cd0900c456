package util

import "unicode/utf16"

// DecodeRar3Unicode rebuilds a RAR encoded Unicode name. asciiPart is the
// narrow name before the NUL separator and unicodeData the encoded tail.
// The tail starts with the shared high byte followed by groups of a flag
// byte and up to four 2-bit opcodes.
func DecodeRar3Unicode(asciiPart, unicodeData []byte) string {
	if len(unicodeData) == 0 {
		return string(asciiPart)
	}
	out := make([]uint16, 0, len(asciiPart))
	pos := 0
	highByte := unicodeData[pos]
	pos++
	var flags byte
	flagBits := 0

decode:
	for pos < len(unicodeData) {
		if flagBits == 0 {
			flags = unicodeData[pos]
			pos++
			flagBits = 8
		}
		switch flags >> 6 {
		case 0:
			if pos >= len(unicodeData) {
				break decode
			}
			out = append(out, uint16(unicodeData[pos]))
			pos++
		case 1:
			if pos >= len(unicodeData) {
				break decode
			}
			out = append(out, uint16(unicodeData[pos])|uint16(highByte)<<8)
			pos++
		case 2:
			if pos+1 >= len(unicodeData) {
				break decode
			}
			out = append(out, uint16(unicodeData[pos])|uint16(unicodeData[pos+1])<<8)
			pos += 2
		case 3:
			if pos >= len(unicodeData) {
				break decode
			}
			length := int(unicodeData[pos])
			pos++
			if length&0x80 != 0 {
				if pos >= len(unicodeData) {
					break decode
				}
				correction := unicodeData[pos]
				pos++
				for n := length&0x7f + 2; n > 0 && len(out) < len(asciiPart); n-- {
					c := asciiPart[len(out)] + correction
					out = append(out, uint16(c)|uint16(highByte)<<8)
				}
			} else {
				for n := length + 2; n > 0 && len(out) < len(asciiPart); n-- {
					out = append(out, uint16(asciiPart[len(out)]))
				}
			}
		}
		flags <<= 2
		flagBits -= 2
	}
	return string(utf16.Decode(out))
}

// EncodeRar3Unicode produces the encoded tail for DecodeRar3Unicode. It
// writes a zero high byte and stores each code unit as a literal byte
// or a full word.
func EncodeRar3Unicode(units []uint16) []byte {
	out := []byte{0}
	for i := 0; i < len(units); i += 4 {
		flagPos := len(out)
		out = append(out, 0)
		var flags byte
		for j := 0; j < 4; j++ {
			flags <<= 2
			if i+j >= len(units) {
				continue
			}
			u := units[i+j]
			if u < 0x100 {
				out = append(out, byte(u))
			} else {
				flags |= 2
				out = append(out, byte(u), byte(u>>8))
			}
		}
		out[flagPos] = flags
	}
	return out
}
