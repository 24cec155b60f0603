// Package fingerprint derives the device signature a session is bound to.
package fingerprint

import (
	"github.com/civicportal/session-core/internal/logger"
	"github.com/civicportal/session-core/internal/models"
	"github.com/rs/zerolog"
)

// EnvironmentReader reads the raw environment attributes of the client.
// Every method may fail; the generator never propagates those failures.
type EnvironmentReader interface {
	UserAgent() (string, error)
	Platform() (string, error)
	TimeZone() (string, error)
	ScreenResolution() (string, error)
	LanguageTag() (string, error)
	RenderingSignature() (string, error)
}

// Generator produces DeviceFingerprints from an EnvironmentReader.
type Generator struct {
	env EnvironmentReader
	log zerolog.Logger
}

func NewGenerator(env EnvironmentReader) *Generator {
	return &Generator{
		env: env,
		log: logger.Component("fingerprint"),
	}
}

// Generate reads the current environment. Unreadable attributes are left empty.
func (g *Generator) Generate() models.DeviceFingerprint {
	return models.DeviceFingerprint{
		UserAgent:          g.read("userAgent", g.env.UserAgent),
		Platform:           g.read("platform", g.env.Platform),
		TimeZone:           g.read("timezone", g.env.TimeZone),
		ScreenResolution:   g.read("screenResolution", g.env.ScreenResolution),
		LanguageTag:        g.read("language", g.env.LanguageTag),
		RenderingSignature: g.read("renderingSignature", g.env.RenderingSignature),
	}
}

func (g *Generator) read(field string, fn func() (string, error)) (value string) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Debug().Str("field", field).Interface("panic", r).Msg("Fingerprint attribute probe panicked")
			value = ""
		}
	}()
	v, err := fn()
	if err != nil {
		g.log.Debug().Err(err).Str("field", field).Msg("Fingerprint attribute unavailable")
		return ""
	}
	return v
}

// Compare reports whether two fingerprints belong to the same device.
// Screen resolution, language and rendering signature vary on a single device and are ignored.
func Compare(a, b models.DeviceFingerprint) bool {
	return a.UserAgent == b.UserAgent &&
		a.Platform == b.Platform &&
		a.TimeZone == b.TimeZone
}
