package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// settings are the defaults a config file may change. Flags override them.
type settings struct {
	Dest       string `toml:"dest"`
	Password   string `toml:"password"`
	Charset    string `toml:"charset"`
	Progress   bool   `toml:"progress"`
	Verbose    bool   `toml:"verbose"`
	KeepBroken bool   `toml:"keep_broken"`
	Overwrite  string `toml:"overwrite"`
	Rebuild    bool   `toml:"rebuild"`
	Format     string `toml:"format"`

	Codec      string `toml:"codec"`
	Speed      string `toml:"speed"`
	Solid      bool   `toml:"solid"`
	VolumeSize int64  `toml:"volume_size"`
	Parity     int    `toml:"parity"`
	Recovery   bool   `toml:"recovery"`
}

var cfg settings

func defaultSettings() settings {
	return settings{
		Charset:   "cp437",
		Progress:  true,
		Overwrite: "prompt",
		Format:    "table",
		Codec:     "deflate",
		Speed:     "default",
		Parity:    3,
	}
}

// ResetDefaults restores the built in settings.
func ResetDefaults() {
	cfg = defaultSettings()
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "goxr", "config.toml")
}

// loadConfig decodes path over the current settings. A missing default
// file is not an error.
func loadConfig(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return errors.Wrapf(err, "config %v", path)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return errors.Errorf("config %v: unknown key %v", path, undec[0])
	}
	return nil
}

// configArg finds -config before the flag set is built, so its values
// can serve as flag defaults.
func configArg(args []string) (string, bool) {
	for i, a := range args {
		a = strings.TrimPrefix(strings.TrimPrefix(a, "-"), "-")
		switch {
		case strings.HasPrefix(a, "config="):
			return strings.TrimPrefix(a, "config="), true
		case a == "config" && i+1 < len(args):
			return args[i+1], true
		}
	}
	return defaultConfigPath(), false
}

var charsets = map[string]encoding.Encoding{
	"cp437":     charmap.CodePage437,
	"cp850":     charmap.CodePage850,
	"cp852":     charmap.CodePage852,
	"cp866":     charmap.CodePage866,
	"cp1250":    charmap.Windows1250,
	"cp1251":    charmap.Windows1251,
	"cp1252":    charmap.Windows1252,
	"iso8859-1": charmap.ISO8859_1,
	"koi8-r":    charmap.KOI8R,
}

func parseCharset(name string) (encoding.Encoding, error) {
	if e, ok := charsets[strings.ToLower(name)]; ok {
		return e, nil
	}
	return nil, errors.Errorf("unknown charset %q", name)
}
