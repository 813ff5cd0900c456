package recovery

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func writeVolumes(t *testing.T, dir string) ([]string, [][]byte) {
	t.Helper()
	var paths []string
	var contents [][]byte
	for i, name := range []string{"set.part1.rar", "set.part2.rar", "set.part3.rar"} {
		data := bytes.Repeat([]byte{byte('a' + i), byte(i * 7)}, 1500+i*10)
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatalf("write volume: %v", err)
		}
		paths = append(paths, p)
		contents = append(contents, data)
	}
	return paths, contents
}

func TestReconstruct(t *testing.T) {
	cases := []struct {
		name   string
		damage func(paths []string) error
		fixed  int
	}{
		{"missing", func(p []string) error { return os.Remove(p[1]) }, 1},
		{"corrupt", func(p []string) error {
			f, err := os.OpenFile(p[0], os.O_WRONLY, 0)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = f.WriteAt([]byte("XXXX"), 100)
			return err
		}, 0},
		{"truncated", func(p []string) error { return os.Truncate(p[2], 10) }, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			paths, contents := writeVolumes(t, dir)
			rev := filepath.Join(dir, "set.rev")
			if err := Create(rev, paths, 6); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := tc.damage(paths); err != nil {
				t.Fatalf("damage: %v", err)
			}
			repaired, err := Reconstruct(rev)
			if err != nil {
				t.Fatalf("reconstruct: %v", err)
			}
			if len(repaired) != 1 || repaired[0] != paths[tc.fixed] {
				t.Fatalf("repaired %v", repaired)
			}
			got, err := os.ReadFile(paths[tc.fixed])
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, contents[tc.fixed]) {
				t.Fatalf("volume content mismatch")
			}
		})
	}
}

func TestReconstructIntact(t *testing.T) {
	dir := t.TempDir()
	paths, _ := writeVolumes(t, dir)
	rev := filepath.Join(dir, "set.rev")
	if err := Create(rev, paths, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := Reconstruct(rev); !errors.Is(err, ErrNothingToDo) {
		t.Fatalf("expected nothing to do, got %v", err)
	}
}

func TestReconstructTooDamaged(t *testing.T) {
	dir := t.TempDir()
	paths, _ := writeVolumes(t, dir)
	rev := filepath.Join(dir, "set.rev")
	if err := Create(rev, paths, 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	os.Remove(paths[0])
	os.Remove(paths[1])
	if _, err := Reconstruct(rev); !errors.Is(err, ErrTooDamaged) {
		t.Fatalf("expected too damaged, got %v", err)
	}
}

func TestBadSidecar(t *testing.T) {
	dir := t.TempDir()
	paths, _ := writeVolumes(t, dir)
	rev := filepath.Join(dir, "set.rev")
	if err := Create(rev, paths, 3); err != nil {
		t.Fatalf("create: %v", err)
	}
	raw, _ := os.ReadFile(rev)
	raw[8] ^= 0xff
	os.WriteFile(rev, raw, 0o644)
	if _, err := Reconstruct(rev); !errors.Is(err, ErrBadSidecar) {
		t.Fatalf("expected bad sidecar, got %v", err)
	}
}
