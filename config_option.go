package minorm

import (
	"github.com/minorm/minorm/logger"
	"github.com/minorm/minorm/schema"
)

// ConfigOption use functional option for minorm Config.
type ConfigOption func(c *Config)

// WithLogger set logger.
func WithLogger(logger logger.Interface) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithNamingStrategy set table and column namer.
func WithNamingStrategy(namer schema.Namer) ConfigOption {
	return func(c *Config) {
		c.NamingStrategy = namer
	}
}

// WithTranslateError translate constraint violations into errtranslator errors.
func WithTranslateError() ConfigOption {
	return func(c *Config) {
		c.TranslateError = true
	}
}

// WithDisableAutomaticPing skip the ping on open.
func WithDisableAutomaticPing() ConfigOption {
	return func(c *Config) {
		c.DisableAutomaticPing = true
	}
}
