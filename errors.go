package goxr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failure for the run summary and the
// propagation policy.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindOpenFailed
	KindNotAnArchive
	KindMalformedHeader
	KindUnsupportedCodecVersion
	KindPasswordRequired
	KindWrongPassword
	KindPasswordCancelled
	KindDestinationCreateFailed
	KindNextVolumeMissing
	KindBrokenEntry
	kindCount
)

var kindNames = []string{
	"None",
	"OpenFailed",
	"NotAnArchive",
	"MalformedHeader",
	"UnsupportedCodecVersion",
	"PasswordRequired",
	"WrongPassword",
	"PasswordCancelled",
	"DestinationCreateFailed",
	"NextVolumeMissing",
	"BrokenEntry",
}

func (k ErrorKind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

var (
	ErrOpenFailed              = errors.New("cannot open archive")
	ErrNotAnArchive            = errors.New("not a RAR archive")
	ErrMalformedHeader         = errors.New("malformed header")
	ErrUnsupportedCodecVersion = errors.New("unsupported codec version")
	ErrPasswordRequired        = errors.New("password required")
	ErrWrongPassword           = errors.New("wrong password")
	ErrPasswordCancelled       = errors.New("password entry cancelled")
	ErrDestinationCreateFailed = errors.New("cannot create destination")
	ErrNextVolumeMissing       = errors.New("next volume missing")
	ErrBrokenEntry             = errors.New("checksum mismatch")

	// ErrEndOfStream is returned by ReadNext when the current volume has no
	// more bytes.
	ErrEndOfStream = errors.New("end of stream")
)

var kindErrors = []error{
	nil,
	ErrOpenFailed,
	ErrNotAnArchive,
	ErrMalformedHeader,
	ErrUnsupportedCodecVersion,
	ErrPasswordRequired,
	ErrWrongPassword,
	ErrPasswordCancelled,
	ErrDestinationCreateFailed,
	ErrNextVolumeMissing,
	ErrBrokenEntry,
}

// EntryError ties a failure to the archive and entry it happened in.
type EntryError struct {
	Kind    ErrorKind
	Archive string
	Entry   string
	Err     error
}

func (e *EntryError) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Entry != "" {
		return fmt.Sprintf("%s: %s: %s", e.Archive, e.Entry, msg)
	}
	return fmt.Sprintf("%s: %s", e.Archive, msg)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind even when Err wraps
// something else.
func (e *EntryError) Is(target error) bool {
	return e.Kind > KindNone && e.Kind < kindCount && target == kindErrors[e.Kind]
}

func newEntryError(kind ErrorKind, archive, entry string, err error) *EntryError {
	if err == nil {
		err = kindErrors[kind]
	}
	return &EntryError{Kind: kind, Archive: archive, Entry: entry, Err: err}
}

// KindOf reports the kind of err, or KindNone when it is not one of the
// classified failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ee *EntryError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	for k := KindOpenFailed; k < kindCount; k++ {
		if errors.Is(err, kindErrors[k]) {
			return k
		}
	}
	return KindNone
}

// classify returns err as an *EntryError, keeping an existing kind.
func classify(kind ErrorKind, archive, entry string, err error) *EntryError {
	var ee *EntryError
	if errors.As(err, &ee) {
		return ee
	}
	if k := KindOf(err); k != KindNone {
		kind = k
	}
	return newEntryError(kind, archive, entry, err)
}
