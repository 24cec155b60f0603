package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/term"
	"golang.org/x/text/language"
)

// renderingSignatureLen bounds the stored rendering signature.
const renderingSignatureLen = 50

var errNotTerminal = errors.New("stdout is not a terminal")

// SystemEnvironment reads attributes of the host the portal client runs on.
type SystemEnvironment struct {
	AppName    string
	AppVersion string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// TerminalFd is the descriptor probed for the screen size, defaults to stdout.
	TerminalFd int
}

var _ EnvironmentReader = (*SystemEnvironment)(nil)

func NewSystemEnvironment(appName, appVersion string) *SystemEnvironment {
	return &SystemEnvironment{
		AppName:    appName,
		AppVersion: appVersion,
		Getenv:     os.Getenv,
		TerminalFd: int(os.Stdout.Fd()),
	}
}

func (e *SystemEnvironment) getenv(key string) string {
	if e.Getenv == nil {
		return os.Getenv(key)
	}
	return e.Getenv(key)
}

func (e *SystemEnvironment) UserAgent() (string, error) {
	if e.AppName == "" {
		return "", errors.New("application name not set")
	}
	return fmt.Sprintf("%s/%s (%s; %s)", e.AppName, e.AppVersion, runtime.Version(), runtime.Compiler), nil
}

func (e *SystemEnvironment) Platform() (string, error) {
	return runtime.GOOS + "/" + runtime.GOARCH, nil
}

func (e *SystemEnvironment) TimeZone() (string, error) {
	if tz := e.getenv("TZ"); tz != "" {
		loc, err := time.LoadLocation(strings.TrimPrefix(tz, ":"))
		if err != nil {
			return "", fmt.Errorf("invalid TZ %q: %w", tz, err)
		}
		return loc.String(), nil
	}
	return time.Local.String(), nil
}

func (e *SystemEnvironment) ScreenResolution() (string, error) {
	if !term.IsTerminal(e.TerminalFd) {
		return "", errNotTerminal
	}
	w, h, err := term.GetSize(e.TerminalFd)
	if err != nil {
		return "", fmt.Errorf("failed to read terminal size: %w", err)
	}
	return fmt.Sprintf("%dx%d", w, h), nil
}

// LanguageTag resolves the POSIX locale (LC_ALL, LC_MESSAGES, LANG) to a BCP 47 tag.
func (e *SystemEnvironment) LanguageTag() (string, error) {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		raw := e.getenv(key)
		if raw == "" || raw == "C" || raw == "POSIX" {
			continue
		}
		if i := strings.IndexAny(raw, ".@"); i >= 0 {
			raw = raw[:i]
		}
		tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
		if err != nil {
			return "", fmt.Errorf("unparseable locale %q: %w", raw, err)
		}
		return tag.String(), nil
	}
	return "", errors.New("no locale configured")
}

// RenderingSignature hashes a fixed probe together with the runtime that renders it.
// The value may legitimately change between runs and must never decide device identity.
func (e *SystemEnvironment) RenderingSignature() (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "fingerprint|%s|%s|%s|%d", runtime.GOOS, runtime.GOARCH, runtime.Version(), runtime.NumCPU())
	sig := base64.StdEncoding.EncodeToString(h.Sum(nil))
	if len(sig) > renderingSignatureLen {
		sig = sig[:renderingSignatureLen]
	}
	return sig, nil
}
