package goxr

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerCaller(t *testing.T) {
	var out, errOut bytes.Buffer
	l := newLogger(&out, &errOut, true, false)
	l.debug("opened %v", "a.rar")
	if !strings.Contains(out.String(), "util_test.go") || !strings.Contains(out.String(), "opened a.rar") {
		t.Fatalf("verbose line does not name its caller: %q", out.String())
	}

	out.Reset()
	l.info("plain")
	if out.String() != "plain\n" {
		t.Fatalf("info line %q", out.String())
	}

	quiet := newLogger(&out, &errOut, true, true)
	out.Reset()
	quiet.debug("hidden")
	quiet.warn("shown %d", 1)
	if out.Len() != 0 || !strings.Contains(errOut.String(), "warning: shown 1") {
		t.Fatalf("quiet logger: out %q err %q", out.String(), errOut.String())
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	if ok, err := fileExists(dir + "/absent"); ok || err != nil {
		t.Fatalf("absent file: %v, %v", ok, err)
	}
	if ok, err := fileExists(dir); !ok || err != nil {
		t.Fatalf("existing dir: %v, %v", ok, err)
	}
}
