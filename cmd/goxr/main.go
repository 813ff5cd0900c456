package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"

	"goxr"
	"goxr/internal/codec"
	"goxr/internal/rarwrite"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, ",") }
func (l *listFlag) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func init() {
	ResetDefaults()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		showUsage(stdout)
		fmt.Fprintln(stderr, "\nError: No mode specified.")
		return 1
	}
	cmd := strings.ToLower(args[0])

	cfgPath, explicit := configArg(args[1:])
	if err := loadConfig(cfgPath, explicit); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	flagSet := flag.NewFlagSet("goxr", flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	var excludes listFlag
	flagSet.String("config", cfgPath, "TOML file with default settings")
	var (
		dest       = flagSet.String("d", cfg.Dest, "destination directory")
		password   = flagSet.String("pw", cfg.Password, "password for encrypted entries")
		arcPath    = flagSet.String("ap", "", "archive path to extract from and strip")
		charset    = flagSet.String("charset", cfg.Charset, "charset of legacy file names")
		progress   = flagSet.Bool("progress", cfg.Progress, "show progress bar")
		verbose    = flagSet.Bool("verbose", cfg.Verbose, "verbose logging")
		format     = flagSet.String("format", cfg.Format, "listing format: table, tech, json or bare")
		version    = flagSet.String("ver", "", "file versions: all, or a revision number")
		rebuild    = flagSet.Bool("rebuild", cfg.Rebuild, "rebuild missing volumes from the recovery sidecar")
		caseSens   = flagSet.Bool("case", false, "case sensitive name matching")
		codecName  = flagSet.String("codec", cfg.Codec, "create: codec (store, deflate, gzip, zstd, lz4, s2, snappy, brotli, xz)")
		speed      = flagSet.String("speed", cfg.Speed, "create: fastest, default, better or best")
		solid      = flagSet.Bool("solid", cfg.Solid, "create: solid archive")
		volumeSize = flagSet.Int64("volsize", cfg.VolumeSize, "create: volume size in bytes, 0 for one volume")
		recovery   = flagSet.Bool("rev", cfg.Recovery, "create: write a recovery sidecar")
		parity     = flagSet.Int("parity", cfg.Parity, "create: recovery parity shards")
		cpuProfile = flagSet.String("cpuprofile", "", "write a CPU profile to this file")
	)
	flagSet.Var(&excludes, "x", "exclude pattern (repeatable)")
	if err := flagSet.Parse(args[1:]); err != nil {
		return 1
	}
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(stderr, "cpu profile: %v\n", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(stderr, "cpu profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	//Options
	req := goxr.Request{
		Dest:          *dest,
		ArcPath:       *arcPath,
		Password:      *password,
		KeepBroken:    cfg.KeepBroken,
		Excludes:      excludes,
		CaseSensitive: *caseSens,
	}
	switch cfg.Overwrite {
	case "always":
		req.Overwrite = goxr.OverwriteAlways
	case "never":
		req.Overwrite = goxr.OverwriteNever
	}
	includeHidden := false
	mode := cmd[:1]
	for _, letter := range cmd[1:] {
		switch letter {
		case 'f':
			req.Freshen = true
		case 'u':
			req.Update = true
		case 'o':
			req.Overwrite = goxr.OverwriteAlways
		case 'n':
			req.Overwrite = goxr.OverwriteNever
		case 'r':
			req.Recurse = true
		case 'k':
			req.KeepBroken = true
		case 'a':
			req.AppendArcName = true
		case 's':
			req.PathMode = goxr.PathStripBase
		case 'b':
			req.PathMode = goxr.PathAbsolute
		case 'i':
			includeHidden = true
		default:
			showUsage(stdout)
			fmt.Fprintf(stderr, "Unknown option: %c\n", letter)
			return 1
		}
	}

	enc, err := parseCharset(*charset)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	req.NameCharset = enc

	switch *version {
	case "":
	case "all":
		req.Version.Mode = goxr.VersionAll
	default:
		n, err := strconv.Atoi(*version)
		if err != nil || n < 0 {
			fmt.Fprintf(stderr, "invalid -ver %q\n", *version)
			return 1
		}
		req.Version = goxr.VersionPolicy{Mode: goxr.VersionSelect, Number: n}
	}

	switch *format {
	case "tech":
		req.ListFormat = goxr.ListTechnical
	case "json":
		req.ListFormat = goxr.ListJSON
	case "bare":
		req.ListFormat = goxr.ListBare
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		showUsage(stdout)
		fmt.Fprintln(stderr, "\nError: No archive specified.")
		return 1
	}

	//Modes
	switch mode {
	case "c":
		return create(rest, createOptions{
			codec:         *codecName,
			speed:         *speed,
			solid:         *solid,
			password:      *password,
			volumeSize:    *volumeSize,
			includeHidden: includeHidden,
			recovery:      *recovery,
			parity:        *parity,
		}, stdout, stderr)
	case "x":
	case "e":
		req.Flatten = true
	case "t":
		req.Mode = goxr.ModeTest
	case "p":
		req.Mode = goxr.ModePrintToStream
	case "l":
		req.Mode = goxr.ModeListOnly
	case "v":
		req.Mode = goxr.ModeListOnly
		if *format == "table" {
			req.ListFormat = goxr.ListTechnical
		}
	default:
		showUsage(stdout)
		fmt.Fprintf(stderr, "Unknown mode: %v\n", mode)
		return 1
	}

	archives, err := expandArchives(rest[0])
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	req.Archives = archives
	patterns := rest[1:]
	// A trailing path ending in a separator is the destination
	if n := len(patterns); n > 0 && (strings.HasSuffix(patterns[n-1], "/") || strings.HasSuffix(patterns[n-1], string(filepath.Separator))) {
		req.Dest = patterns[n-1]
		patterns = patterns[:n-1]
	}
	req.Patterns = patterns

	opts := goxr.Options{
		Stdout:   stdout,
		Log:      stdout,
		ErrLog:   stderr,
		Progress: *progress,
		Verbose:  *verbose,
	}
	if req.Mode == goxr.ModePrintToStream {
		opts.Log = stderr
	}
	if !goxr.IsNonInteractive() {
		opts.Prompter = goxr.NewTerminalPrompter()
	}
	if *rebuild {
		opts.Reconstructor = goxr.SidecarReconstructor{}
	}

	res, err := goxr.Extract(ctx, req, opts)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	summary := stdout
	if req.Mode == goxr.ModePrintToStream {
		summary = stderr
	}
	res.Summary(summary, req.Mode)
	return res.ExitCode()
}

// expandArchives resolves a glob; a plain name that matches nothing is
// kept so the open failure is reported for it.
func expandArchives(arg string) ([]string, error) {
	matches, err := filepath.Glob(arg)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []string{arg}, nil
	}
	return matches, nil
}

type createOptions struct {
	codec         string
	speed         string
	solid         bool
	password      string
	volumeSize    int64
	includeHidden bool
	recovery      bool
	parity        int
}

func create(args []string, o createOptions, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "create: an archive name and input paths are required")
		return 1
	}
	archive, inputs := args[0], args[1:]
	if filepath.Ext(archive) == "" {
		archive += ".rar"
	}

	opts := rarwrite.Options{
		Solid:        o.solid,
		Password:     o.password,
		VolumeSize:   o.volumeSize,
		NewNumbering: o.volumeSize > 0,
		ExtTime:      true,
		HostOS:       rarwrite.HostUnix,
	}
	if runtime.GOOS == "windows" {
		opts.HostOS = rarwrite.HostWin32
	}
	if o.codec != "store" {
		v, ok := codec.VersionByName(o.codec)
		if !ok {
			fmt.Fprintf(stderr, "create: unknown codec %q\n", o.codec)
			return 1
		}
		opts.Codec = v
	}
	sp, ok := codec.ParseSpeed(o.speed)
	if !ok {
		fmt.Fprintf(stderr, "create: unknown speed %q\n", o.speed)
		return 1
	}
	opts.Speed = sp

	entries, err := rarwrite.Walk(inputs, o.includeHidden)
	if err != nil {
		fmt.Fprintf(stderr, "create: %v\n", err)
		return 1
	}
	vols, err := rarwrite.WriteArchive(archive, opts, entries)
	if err != nil {
		fmt.Fprintf(stderr, "create: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %v containing %v entries.\n", strings.Join(vols, ", "), len(entries))

	if o.recovery {
		rev, err := goxr.CreateRecovery(vols[0], o.parity)
		if err != nil {
			fmt.Fprintf(stderr, "create: recovery: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Wrote recovery sidecar %v.\n", rev)
	}
	return 0
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: goxr <mode>[options] [flags] archive [patterns...] [destination/]")
	fmt.Fprintln(w, "       goxr c [flags] archive inputs...")
	fmt.Fprintln(w, "\nModes:")
	fmt.Fprintln(w, "  x = Extract with full paths")
	fmt.Fprintln(w, "  e = Extract into the destination without paths")
	fmt.Fprintln(w, "  t = Test archive contents")
	fmt.Fprintln(w, "  p = Print file contents to stdout")
	fmt.Fprintln(w, "  l = List archive contents")
	fmt.Fprintln(w, "  v = List archive contents in detail")
	fmt.Fprintln(w, "  c = Create an archive")

	fmt.Fprintln(w, "\nOptions:")
	fmt.Fprint(w, "  f = Freshen existing files	")
	fmt.Fprintln(w, "  u = Update files")
	fmt.Fprint(w, "  o = Overwrite without asking	")
	fmt.Fprintln(w, "  n = Never overwrite")
	fmt.Fprint(w, "  r = Recurse wildcards		")
	fmt.Fprintln(w, "  k = Keep broken files")
	fmt.Fprint(w, "  a = Archive name as folder	")
	fmt.Fprintln(w, "  s = Strip the common base path")
	fmt.Fprint(w, "  b = Absolute paths		")
	fmt.Fprintln(w, "  i = Include dotfiles (create)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  goxr x photos.rar out/			(extract everything)")
	fmt.Fprintln(w, "  goxr er photos.rar '*.jpg' out/	(every jpg, no paths)")
	fmt.Fprintln(w, "  goxr c -solid -volsize=100000000 -rev backup.rar myStuff")
}
