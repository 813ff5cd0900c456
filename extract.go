package goxr

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"goxr/internal/codec"
)

// Reconstructor rebuilds missing or damaged volumes of the set that
// firstVolume starts, returning the volumes it rewrote.
type Reconstructor interface {
	Reconstruct(firstVolume string) ([]string, error)
}

// Options are the collaborators of a run. Zero values select the OS
// sink, the built in unpacker and no prompting.
type Options struct {
	Sink            FileSink
	Prompter        Prompter
	UnpackerFactory UnpackerFactory
	Reconstructor   Reconstructor

	// Stdout receives entry data in ModePrintToStream and listings in
	// ModeListOnly.
	Stdout io.Writer
	// Log and ErrLog receive progress lines and warnings.
	Log    io.Writer
	ErrLog io.Writer

	Progress bool
	Verbose  bool
}

type loopResult int

const (
	loopContinue loopResult = iota
	loopRestart
	loopDone
)

type coordinator struct {
	ctx      context.Context
	req      *Request
	opts     Options
	sink     FileSink
	factory  UnpackerFactory
	log      *logger
	pb       *PathBuilder
	progress *progressTracker
	lister   *lister
	result   *Result

	covered map[string]bool
	written map[string]bool
}

// Extract runs req over every named archive in order. Failures of single
// archives and entries are reported in the Result; the error return is
// for requests that cannot run at all.
func Extract(ctx context.Context, req Request, opts Options) (*Result, error) {
	if len(req.Archives) == 0 {
		return nil, errors.New("no archives given")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := newCoordinator(ctx, req.normalized(), opts)
	defer c.progress.stop()
	for _, name := range c.req.Archives {
		if c.covered[volumeKey(name)] {
			c.log.debug("%v was processed as part of an earlier volume set", name)
			continue
		}
		c.runArchive(name)
		if c.result.Break {
			break
		}
	}
	if c.req.Mode == ModeListOnly {
		if err := c.lister.flush(); err != nil {
			return c.result, err
		}
	}
	return c.result, nil
}

func newCoordinator(ctx context.Context, req *Request, opts Options) *coordinator {
	c := &coordinator{
		ctx:     ctx,
		req:     req,
		opts:    opts,
		sink:    opts.Sink,
		factory: opts.UnpackerFactory,
		result:  &Result{},
		covered: map[string]bool{},
		written: map[string]bool{},
	}
	if c.sink == nil {
		c.sink = OSSink{}
	}
	if c.factory == nil {
		c.factory = defaultUnpacker
	}
	if c.opts.Stdout == nil {
		c.opts.Stdout = os.Stdout
	}
	quiet := req.Mode == ModePrintToStream
	c.log = newLogger(opts.Log, opts.ErrLog, opts.Verbose, quiet)
	c.pb = newPathBuilder(c.log)
	c.progress = newProgressTracker(opts.Log, opts.Progress && !quiet && req.Mode != ModeListOnly)
	c.lister = newLister(c.opts.Stdout, req.ListFormat, opts.Verbose)
	return c
}

func volumeKey(name string) string {
	if abs, err := filepath.Abs(name); err == nil {
		return abs
	}
	return filepath.Clean(name)
}

// runArchive drives the attempts at one named archive. An attempt may
// restart from the first volume of its set, either because it was
// handed a later volume or because a missing volume was rebuilt. Only
// the attempt that finishes counts towards the run totals.
func (c *coordinator) runArchive(name string) {
	path := name
	repaired := false
	for {
		s := newSession(path, c.req, c.opts.Prompter)
		res, next := c.processArchive(path, s)
		if res == loopRestart {
			c.log.debug("restarting at %v", next)
			path = next
			continue
		}
		if s.volumeMissing && !repaired && c.opts.Reconstructor != nil && !c.result.Break {
			first := FirstVolumeName(path, s.newNumbering)
			rebuilt, err := c.opts.Reconstructor.Reconstruct(first)
			if err == nil {
				c.log.info("Rebuilt %v volume(s) of %v", len(rebuilt), first)
				repaired = true
				path = first
				continue
			}
			c.log.warn("%v: cannot rebuild volumes: %v", first, err)
		}
		c.finishArchive(s)
		return
	}
}

// finishArchive folds a completed attempt into the run.
func (c *coordinator) finishArchive(s *Session) {
	for _, v := range s.volumes {
		c.covered[volumeKey(v)] = true
	}
	if s.multiVolume && len(s.volumes) > 0 {
		for _, v := range volumeSet(FirstVolumeName(s.volumes[0], s.newNumbering), s.newNumbering) {
			c.covered[volumeKey(v)] = true
		}
	}
	c.result.add(s.stats)
	c.result.Failures = append(c.result.Failures, s.failures...)
	if c.req.Mode == ModeListOnly && s.stats.Archives > 0 {
		c.lister.archive(s)
	}
}

// volumeSet lists the existing volumes of the set starting at first.
func volumeSet(first string, newNumbering bool) []string {
	var vols []string
	for p := first; ; p = NextVolumeName(p, newNumbering) {
		fi, err := os.Stat(p)
		if err != nil || fi.IsDir() {
			return vols
		}
		vols = append(vols, p)
	}
}

func setSize(vols []string) int64 {
	var n int64
	for _, v := range vols {
		if fi, err := os.Stat(v); err == nil {
			n += fi.Size()
		}
	}
	return n
}

// processArchive is one attempt at one archive: the header loop.
func (c *coordinator) processArchive(path string, s *Session) (loopResult, string) {
	h, err := OpenArchive(path, c.req.NameCharset)
	if err != nil {
		kind := KindOf(err)
		if kind == KindNone {
			kind = KindOpenFailed
		}
		ee := s.fail(kind, nil, err)
		s.stats.Warnings++
		c.log.error("%v", ee)
		return loopDone, ""
	}
	defer h.Close()

	s.stats.Archives = 1
	s.solid = h.Solid
	s.locked = h.Locked
	s.multiVolume = h.MultiVolume
	s.newNumbering = h.NewNumbering
	s.volumes = append(s.volumes, path)

	if c.req.Mode != ModeListOnly {
		c.log.info("\n%v archive %v", c.req.Mode.verb(), path)
	}
	c.progress.stop()
	if h.MultiVolume {
		c.progress.start(setSize(volumeSet(path, h.NewNumbering)))
	} else {
		c.progress.start(h.vr.size)
	}
	defer c.progress.stop()

	du := newDataIO(c.ctx, h, c.log, &s.stats, c.progress)
	unp := c.factory(du)

	for {
		if err := c.ctx.Err(); err != nil {
			c.result.Break = true
			break
		}
		hdr, err := ReadNext(h)
		if err != nil {
			if !errors.Is(err, ErrEndOfStream) {
				c.log.error("%v", s.fail(KindMalformedHeader, nil, err))
				break
			}
			hdr = nil
		}
		if NeedsMerge(h, hdr) {
			res, err := Merge(h)
			if err != nil {
				c.volumeError(s, h, err)
				break
			}
			if res == NoMoreVolumes {
				break
			}
			s.volumes = append(s.volumes, h.Path)
			c.log.debug("continuing in %v", h.Path)
			continue
		}
		if hdr == nil {
			break
		}

		res := loopContinue
		next := ""
		switch b := hdr.(type) {
		case *EndOfArchive:
			res = loopDone
		case *SignatureBlock:
			s.signatureSeen = true
		case *ExtSubBlock:
			c.readComment(h, b, s)
		case *FileEntry:
			res, next = c.processEntry(h, du, unp, b, s)
		}
		if res == loopRestart {
			return res, next
		}
		if res == loopDone {
			break
		}
		h.advance()
	}

	c.finalizeDirs(s)
	// A cancelled prompt only stays quiet when something was written
	// before it.
	nothing := s.matchCount == 0 && !s.cancelled || s.cancelled && s.extractedFiles == 0
	if c.req.Mode != ModeListOnly && !c.result.Break && nothing && s.stats.ErrorCount() == 0 {
		c.log.warn("%v: no files to %v", path, c.req.Mode)
		s.stats.Warnings++
	}
	return loopDone, ""
}

// volumeError records a failed volume switch. A missing volume may be
// rebuilt by the caller.
func (c *coordinator) volumeError(s *Session, h *ArchiveHandle, err error) {
	var e *FileEntry
	if h.last != nil && h.last.SplitAfter() {
		e = h.last
	}
	ee := s.fail(KindMalformedHeader, e, err)
	if ee.Kind == KindNextVolumeMissing {
		s.volumeMissing = true
	}
	c.log.error("%v", ee)
}

// readComment picks up a stored archive comment for listings.
func (c *coordinator) readComment(h *ArchiveHandle, b *ExtSubBlock, s *Session) {
	if c.req.Mode != ModeListOnly || b.SubType != "CMT" || b.PackedSize <= 0 || b.PackedSize > 1<<16 {
		return
	}
	if err := h.seekPayload(b); err != nil {
		return
	}
	buf := make([]byte, b.PackedSize)
	if _, err := io.ReadFull(h.vr, buf); err == nil {
		s.comment = string(buf)
	}
}

// finalizeDirs applies times and attributes to the directories created
// for this archive, deepest first.
func (c *coordinator) finalizeDirs(s *Session) {
	for i := len(s.dirs) - 1; i >= 0; i-- {
		d := s.dirs[i]
		if err := c.sink.SetAttributes(d.path, d.entry.Attr, d.entry.HostOS, true); err != nil {
			c.log.debug("attributes of %v: %v", d.path, err)
		}
		if err := c.sink.SetTimestamps(d.path, d.entry.MTime, d.entry.CTime, d.entry.ATime); err != nil {
			c.log.debug("times of %v: %v", d.path, err)
		}
	}
	s.dirs = nil
}

// processEntry resolves and handles one file header.
func (c *coordinator) processEntry(h *ArchiveHandle, du *dataIO, unp Unpacker, e *FileEntry, s *Session) (loopResult, string) {
	first := s.firstFile
	s.firstFile = false
	if e.SplitBefore() {
		if first {
			if fv := FirstVolumeName(h.Path, h.NewNumbering); fv != h.Path {
				if ok, _ := fileExists(fv); ok {
					return loopRestart, fv
				}
			}
		}
		// the rest of an entry met in an earlier volume
		return loopContinue, ""
	}
	s.stats.Seen++

	m := classifyEntry(e, c.req)
	d := Resolve(e, m, c.req, s)
	if d == ExtractFull || d == TestOnly {
		s.recordMatch(m, e, c.req)
	}

	if c.req.Mode == ModeListOnly {
		if d == ExtractFull {
			s.listing = append(s.listing, e)
		}
		return c.afterEntry(s), ""
	}

	switch {
	case d == Skip:
		s.stats.Skipped++
		return loopContinue, ""
	case e.IsDirectory():
		c.makeDir(e, s, d)
		return c.afterEntry(s), ""
	}

	var dest Destination
	if d == ExtractFull && c.req.Mode == ModeExtract {
		var ok bool
		dest, ok = c.prepareDestination(e, s)
		if !ok {
			if !e.IsSolidMember {
				s.stats.Skipped++
				return c.afterEntry(s), ""
			}
			d = DecodeDiscard
		}
	}

	for attempt := 0; ; attempt++ {
		res, retry := c.decodeEntry(du, unp, e, s, d, dest)
		if !retry || attempt > 0 {
			return res, ""
		}
		c.log.debug("retrying %v with a new password", e.Name)
	}
}

// afterEntry ends the archive once every requested name has been found.
func (c *coordinator) afterEntry(s *Session) loopResult {
	if s.allRequestedFound(c.req) {
		return loopDone
	}
	return loopContinue
}

func (c *coordinator) makeDir(e *FileEntry, s *Session, d Decision) {
	if d != ExtractFull || c.req.Mode != ModeExtract || c.req.Flatten || c.req.PathMode == PathStripAll {
		if d == TestOnly {
			s.stats.Tested++
		}
		return
	}
	dest, err := c.pb.Build(e, c.req, s, d)
	if err == nil && dest.Rel == "" {
		return
	}
	if err == nil {
		err = c.sink.MkdirAll(dest.Path)
	}
	if err != nil {
		c.log.error("%v", s.fail(KindDestinationCreateFailed, e, errors.Wrap(ErrDestinationCreateFailed, err.Error())))
		return
	}
	c.log.info("Creating    %v", dest.Rel)
	s.stats.Directories++
	s.dirs = append(s.dirs, pendingDir{path: dest.Path, entry: e})
}

// prepareDestination builds the output path and runs the freshen,
// update, overwrite and free space checks. It reports false when the
// entry must not be written.
func (c *coordinator) prepareDestination(e *FileEntry, s *Session) (Destination, bool) {
	dest, err := c.pb.Build(e, c.req, s, ExtractFull)
	if err != nil {
		c.log.error("%v", s.fail(KindDestinationCreateFailed, e, err))
		return dest, false
	}
	fi, err := c.sink.Stat(dest.Path)
	exists := err == nil
	if exists && fi.IsDir() {
		c.log.error("%v", s.fail(KindDestinationCreateFailed, e, errors.Wrapf(ErrDestinationCreateFailed, "%v is a directory", dest.Path)))
		return dest, false
	}
	if c.req.Freshen && !exists {
		return dest, false
	}
	if (c.req.Freshen || c.req.Update) && exists && !fi.ModTime().Before(e.MTime) {
		c.log.debug("%v is up to date", dest.Path)
		return dest, false
	}
	if exists && !c.req.Freshen && !c.req.Update && !c.written[dest.Path] && !c.mayOverwrite(dest.Path, s) {
		c.log.info("Skipping    %v", dest.Rel)
		return dest, false
	}
	if e.UnpackedSize > 0 {
		if free, err := c.sink.FreeSpace(filepath.Dir(dest.Path)); err == nil && free < uint64(e.UnpackedSize) {
			err := errors.Wrapf(ErrDestinationCreateFailed, "insufficient disk space: need %v, available %v",
				humanize.Bytes(uint64(e.UnpackedSize)), humanize.Bytes(free))
			c.log.error("%v", s.fail(KindDestinationCreateFailed, e, err))
			return dest, false
		}
	}
	return dest, true
}

// mayOverwrite applies the overwrite policy to an existing file. With no
// prompter, prompting means overwriting.
func (c *coordinator) mayOverwrite(path string, s *Session) bool {
	switch c.req.Overwrite {
	case OverwriteAlways:
		return true
	case OverwriteNever:
		return false
	}
	switch {
	case s.overwriteAll:
		return true
	case s.overwriteNone:
		return false
	case c.opts.Prompter == nil:
		return true
	}
	reply, err := c.opts.Prompter.AskOverwrite(path)
	if err != nil {
		return false
	}
	switch reply {
	case OverwriteYesAll:
		s.overwriteAll = true
		return true
	case OverwriteNoAll:
		s.overwriteNone = true
		return false
	}
	return reply == OverwriteYes
}

// decodeEntry runs one decode of e. retry is set when a wrong password
// should be tried again.
func (c *coordinator) decodeEntry(du *dataIO, unp Unpacker, e *FileEntry, s *Session, d Decision, dest Destination) (res loopResult, retry bool) {
	var password string
	if e.HasPassword() {
		pw, err := s.passwords.Obtain(e)
		switch {
		case errors.Is(err, ErrPasswordCancelled):
			s.cancelled = true
			s.fail(KindPasswordCancelled, e, err)
			c.log.info("%v: extraction cancelled", s.archive)
			return loopDone, false
		case err != nil:
			c.log.error("%v", s.fail(KindPasswordRequired, e, err))
			if e.IsSolidMember {
				// Without the key the chain cannot be followed
				return loopDone, false
			}
			return loopContinue, false
		}
		password = pw
	}

	toFile := d == ExtractFull && c.req.Mode == ModeExtract
	var out io.WriteCloser
	var dst io.Writer
	switch {
	case toFile:
		f, err := c.sink.Create(dest.Path)
		if err != nil {
			err = errors.Wrapf(ErrDestinationCreateFailed, "%v: %v", dest.Path, err)
			c.log.error("%v", s.fail(KindDestinationCreateFailed, e, err))
			if !e.IsSolidMember {
				return loopContinue, false
			}
			d, toFile = DecodeDiscard, false
			dst = &countingWriter{}
		} else {
			out, dst = f, f
		}
	case d == ExtractFull:
		dst = c.opts.Stdout
	default:
		dst = &countingWriter{}
	}

	c.progress.setEntry(e.Name)
	err := du.begin(e, password, dst)
	if err == nil {
		if e.IsStored() {
			err = du.unstore()
		} else {
			unp.SetDestinationSize(e.UnpackedSize)
			err = unp.Decode(e.UnpVer, e.IsSolidMember && e.ContinuesSolid())
		}
	}
	var want, got uint32
	if err == nil {
		want, got, err = du.finish()
	}
	if out != nil {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Wrap(ErrDestinationCreateFailed, cerr.Error())
		}
	}

	kind := KindNone
	switch {
	case c.ctx.Err() != nil:
		c.result.Break = true
		if toFile && !c.req.KeepBroken {
			c.sink.Remove(dest.Path)
		}
		return loopDone, false
	case err != nil:
		kind = c.decodeErrorKind(e, err)
	case want != got:
		kind = KindBrokenEntry
		if e.HasPassword() {
			kind = KindWrongPassword
		}
		err = errors.Wrapf(kindErrors[kind], "CRC %08x, want %08x", got, want)
	}

	if kind != KindNone {
		keep := c.req.KeepBroken && (kind == KindBrokenEntry || kind == KindWrongPassword)
		if toFile && !keep {
			c.sink.Remove(dest.Path)
		}
		if kind == KindWrongPassword && !e.IsSolidMember && !e.SplitAfter() && du.merged == 0 && s.passwords.Retry(e) {
			return loopContinue, true
		}
		c.log.error("%v", s.fail(kind, e, err))
		switch kind {
		case KindMalformedHeader:
			return loopDone, false
		case KindNextVolumeMissing:
			s.volumeMissing = true
			return loopDone, false
		}
		if keep && toFile {
			c.finalize(e, s, dest, du.written)
		}
		return c.afterEntry(s), false
	}

	switch {
	case d == DecodeDiscard:
		s.stats.Discarded++
		c.log.debug("decoded %v for the solid stream", e.Name)
	case d == TestOnly:
		s.stats.Tested++
		s.stats.BytesWritten += du.written
		c.log.info("Testing     %-48v OK", e.Name)
	case toFile:
		c.finalize(e, s, dest, du.written)
		c.log.info("Extracting  %-48v OK", dest.Rel)
	default:
		s.stats.Extracted++
		s.extractedFiles++
		s.stats.BytesWritten += du.written
	}
	return c.afterEntry(s), false
}

func (c *coordinator) decodeErrorKind(e *FileEntry, err error) ErrorKind {
	switch {
	case errors.Is(err, codec.ErrUnsupportedVersion), errors.Is(err, ErrUnsupportedCodecVersion):
		return KindUnsupportedCodecVersion
	case errors.Is(err, ErrNextVolumeMissing):
		return KindNextVolumeMissing
	case errors.Is(err, ErrDestinationCreateFailed):
		return KindDestinationCreateFailed
	case errors.Is(err, ErrMalformedHeader):
		return KindMalformedHeader
	case e.HasPassword():
		return KindWrongPassword
	}
	return KindBrokenEntry
}

// finalize applies stored attributes and times to a written file.
func (c *coordinator) finalize(e *FileEntry, s *Session, dest Destination, n int64) {
	if err := c.sink.SetAttributes(dest.Path, e.Attr, e.HostOS, false); err != nil {
		c.log.debug("attributes of %v: %v", dest.Path, err)
	}
	if err := c.sink.SetTimestamps(dest.Path, e.MTime, e.CTime, e.ATime); err != nil {
		c.log.debug("times of %v: %v", dest.Path, err)
	}
	s.lastFinalized = dest.Path
	s.extractedFiles++
	s.stats.Extracted++
	s.stats.BytesWritten += n
	c.written[dest.Path] = true
}
