package rarwrite

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Walk collects the files and directories under roots as entries. Stored
// names are relative to each root's parent, so a root directory keeps its
// own name as the first path element.
func Walk(roots []string, includeHidden bool) ([]Entry, error) {
	var entries []Entry
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		root = filepath.Clean(root)

		// File case
		if !info.IsDir() {
			if includeHidden || !strings.HasPrefix(info.Name(), ".") {
				e, err := gatherEntry(storedPath(root, root), root, info)
				if err != nil {
					return nil, err
				}
				entries = append(entries, e)
			}
			continue
		}

		// Directory case
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path != root && !includeHidden && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && !d.Type().IsRegular() {
				return nil
			}
			name := storedPath(root, path)
			if name == "" {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			e, err := gatherEntry(name, path, info)
			if err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	// Sort for deterministic ordering
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// storedPath returns the archived name for fullPath, relative to the
// basename of root.
func storedPath(root, fullPath string) string {
	cleanRoot := filepath.Clean(root)
	base := filepath.Base(cleanRoot)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	rel, err := filepath.Rel(cleanRoot, filepath.Clean(fullPath))
	if err != nil || rel == "." {
		rel = ""
	}
	return filepath.ToSlash(filepath.Join(base, rel))
}

func gatherEntry(name, src string, info os.FileInfo) (Entry, error) {
	e := Entry{
		Name:    name,
		Dir:     info.IsDir(),
		ModTime: info.ModTime(),
		Mode:    info.Mode().Perm(),
	}
	if !e.Dir {
		data, err := os.ReadFile(src)
		if err != nil {
			return e, err
		}
		e.Data = data
	}
	return e, nil
}
