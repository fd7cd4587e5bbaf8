package minorm

import (
	"sync"

	"github.com/minorm/minorm/logger"
	"github.com/minorm/minorm/schema"
)

// Config minorm config
type Config struct {
	// NamingStrategy tables, columns naming strategy
	NamingStrategy schema.Namer
	// Logger
	Logger logger.Interface
	// TranslateError applies the dialect's errtranslator to statement failures
	TranslateError bool
	// DisableAutomaticPing skips the connectivity check in Open
	DisableAutomaticPing bool

	cacheStore *sync.Map
}

func newConfig(opts []ConfigOption) *Config {
	config := &Config{}
	for _, opt := range opts {
		if opt != nil {
			opt(config)
		}
	}

	if config.NamingStrategy == nil {
		config.NamingStrategy = schema.NamingStrategy{}
	}
	if config.Logger == nil {
		config.Logger = logger.Default
	}
	config.cacheStore = &sync.Map{}
	return config
}
