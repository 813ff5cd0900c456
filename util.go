package goxr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

func fileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// logger writes progress lines to out and warnings to errOut. It is
// silent when extracted data itself goes to stdout.
type logger struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
	quiet   bool
	warnC   *color.Color
	errC    *color.Color
}

func newLogger(out, errOut io.Writer, verbose, quiet bool) *logger {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &logger{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		quiet:   quiet,
		warnC:   color.New(color.FgYellow),
		errC:    color.New(color.FgRed, color.Bold),
	}
}

func (l *logger) doLog(verbose bool, format string, args ...interface{}) {
	if l == nil || l.quiet || (!l.verbose && verbose) {
		return
	}

	var text string
	if args == nil {
		text = format
	} else {
		text = fmt.Sprintf(format, args...)
	}

	if verbose {
		ctime := time.Now()
		_, filename, line, _ := runtime.Caller(2)
		date := fmt.Sprintf("%2v:%2v.%2v", ctime.Hour(), ctime.Minute(), ctime.Second())
		fmt.Fprintf(l.out, "%v: %15v:%5v: %v\n", date, filepath.Base(filename), line, text)
	} else {
		fmt.Fprintln(l.out, text)
	}
}

func (l *logger) info(format string, args ...interface{}) {
	l.doLog(false, format, args...)
}

func (l *logger) debug(format string, args ...interface{}) {
	l.doLog(true, format, args...)
}

// warn and error still print in quiet mode, on errOut only.
func (l *logger) warn(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.warnC.Fprintf(l.errOut, "warning: "+format+"\n", args...)
}

func (l *logger) error(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.errC.Fprintf(l.errOut, "error: "+format+"\n", args...)
}
