package goxr

import (
	"github.com/pkg/errors"
)

type PasswordScope int

const (
	ScopeEntry PasswordScope = iota
	ScopeAll
	ScopeCancel
)

type PasswordReply struct {
	Password string
	Scope    PasswordScope
}

type OverwriteReply int

const (
	OverwriteYes OverwriteReply = iota
	OverwriteNo
	OverwriteYesAll
	OverwriteNoAll
)

// Prompter asks the user for decisions the request leaves open.
type Prompter interface {
	AskPassword(name string) (PasswordReply, error)
	ConfirmRetry(name string) bool
	AskOverwrite(path string) (OverwriteReply, error)
}

// PasswordManager hands out passwords for encrypted entries of one
// session.
type PasswordManager struct {
	fixed    string
	hasFixed bool
	prompter Prompter

	cached    string
	applyAll  bool
	cancelled bool
}

func newPasswordManager(req *Request, prompter Prompter) *PasswordManager {
	return &PasswordManager{fixed: req.Password, hasFixed: req.HasPassword, prompter: prompter}
}

// ApplyToAll reports whether one password now serves every entry.
func (pm *PasswordManager) ApplyToAll() bool { return pm.hasFixed || pm.applyAll }

func (pm *PasswordManager) Cancelled() bool { return pm.cancelled }

// Obtain returns the password for e. A configured password is used
// verbatim; otherwise the first answer marked for all entries is reused.
func (pm *PasswordManager) Obtain(e *FileEntry) (string, error) {
	if pm.hasFixed {
		return pm.fixed, nil
	}
	if pm.applyAll {
		return pm.cached, nil
	}
	if pm.cancelled {
		return "", ErrPasswordCancelled
	}
	if pm.prompter == nil {
		return "", ErrPasswordRequired
	}
	reply, err := pm.prompter.AskPassword(e.Name)
	if err != nil {
		if errors.Is(err, ErrPasswordRequired) {
			return "", err
		}
		return "", errors.Wrap(ErrPasswordRequired, err.Error())
	}
	switch reply.Scope {
	case ScopeCancel:
		pm.cancelled = true
		return "", ErrPasswordCancelled
	case ScopeAll:
		pm.cached = reply.Password
		pm.applyAll = true
	}
	if reply.Password == "" {
		return "", ErrPasswordRequired
	}
	return reply.Password, nil
}

// Retry asks whether a wrong password should be entered again. It is
// never offered when one password serves every entry.
func (pm *PasswordManager) Retry(e *FileEntry) bool {
	if pm.ApplyToAll() || pm.prompter == nil || pm.cancelled {
		return false
	}
	return pm.prompter.ConfirmRetry(e.Name)
}
