package util

import "testing"

func TestDecodeRar3UnicodeSimple(t *testing.T) {
	if got := DecodeRar3Unicode([]byte("abc"), nil); got != "abc" {
		t.Fatalf("want abc got %s", got)
	}
}

func TestDecodeRar3UnicodeFlagPaths(t *testing.T) {
	cases := []struct {
		name   string
		narrow []byte
		enc    []byte
		want   string
	}{
		{"literal bytes", nil, []byte{0x00, 0x00, 'a', 'b'}, "ab"},
		{"high byte", nil, []byte{0x03, 0x40, 0xb2, 'x'}, "βx"},
		{"full word", nil, []byte{0x00, 0x80, 0x3a, 0x26}, "☺"},
		{"copy narrow", []byte("hello"), []byte{0x00, 0xc0, 0x03}, "hello"},
		{"copy corrected", []byte{0x30, 0x31}, []byte{0x04, 0xc0, 0x80, 0x80}, "Ұұ"},
		{"truncated tail", []byte("x"), []byte{0x00, 0x80, 0x41}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecodeRar3Unicode(tc.narrow, tc.enc); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
