package gateway

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/satp/src/common"
	"github.com/sirupsen/logrus"
)

// Config contains the parameters of a Gateway.
type Config struct {
	// Moniker is a friendly name used in logs and stats.
	Moniker string

	// Version is the protocol version written in initialization requests.
	Version string

	// DLTSystem identifies the ledger fronted by the gateway.
	DLTSystem string

	// SupportedDLTs lists the source ledgers accepted in initialization
	// requests.
	SupportedDLTs []string

	// MaxRetries and MaxTimeout are the defaults negotiated for new sessions.
	MaxRetries int
	MaxTimeout time.Duration

	// LockEvidenceTTL is the validity of a lock evidence claim.
	LockEvidenceTTL time.Duration

	// CrashCheckInterval is the period of the stalled session check. Zero
	// disables it.
	CrashCheckInterval time.Duration

	// ServerTimeout bounds the ledger operations performed while answering a
	// request.
	ServerTimeout time.Duration

	Logger *logrus.Logger
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		Version:            "0.0.0",
		MaxRetries:         3,
		MaxTimeout:         5 * time.Second,
		LockEvidenceTTL:    24 * time.Hour,
		CrashCheckInterval: 0,
		ServerTimeout:      10 * time.Second,
		Logger:             logger,
	}
}

// TestConfig returns a configuration with short timeouts, logging through t.
func TestConfig(t testing.TB, dlt string, supported ...string) *Config {
	conf := DefaultConfig()
	conf.Moniker = dlt
	conf.DLTSystem = dlt
	conf.SupportedDLTs = supported
	conf.MaxRetries = 1
	conf.MaxTimeout = 500 * time.Millisecond
	conf.ServerTimeout = time.Second
	conf.Logger = common.NewTestLogger(t, logrus.DebugLevel)
	return conf
}

func (c *Config) supports(dlt string) bool {
	for _, d := range c.SupportedDLTs {
		if d == dlt {
			return true
		}
	}
	return false
}
