package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/satp/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the gateway's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultBindAddr           = "127.0.0.1:1337"
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultTCPTimeout         = 1000 * time.Millisecond
	DefaultMaxPool            = 2
	DefaultStore              = false
	DefaultVersion            = "1.0"
	DefaultDLTSystem          = "DLT1"
	DefaultMaxRetries         = 3
	DefaultMaxTimeout         = 5000 * time.Millisecond
	DefaultLockEvidenceTTL    = 24 * time.Hour
	DefaultCrashCheckInterval = 10 * time.Second
	DefaultServerTimeout      = 10 * time.Second
)

// Config contains all the configuration properties of a gateway.
type Config struct {
	// DataDir is the top-level directory containing gateway configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of the log output through a file
	// hook. The hook writes info and debug lines.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this gateway accepts protocol
	// RPCs from its counterparts.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// gateways. It is the address written in the sessions this gateway opens.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP status service.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxPool controls how many connections are pooled per counterpart.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Store activates persistant storage of sessions, audit log and claims.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Moniker defines the friendly name of this gateway
	Moniker string `mapstructure:"moniker"`

	// Version is the protocol version written in the sessions this gateway
	// opens.
	Version string `mapstructure:"version"`

	// DLTSystem is the ledger this gateway fronts.
	DLTSystem string `mapstructure:"dlt"`

	// SupportedDLTs are the source ledgers this gateway accepts transfers
	// from.
	SupportedDLTs []string `mapstructure:"supported-dlts"`

	// MaxRetries and MaxTimeout are negotiated for the sessions this gateway
	// opens. An exchange is attempted MaxRetries+1 times, each attempt bounded
	// by MaxTimeout.
	MaxRetries int           `mapstructure:"max-retries"`
	MaxTimeout time.Duration `mapstructure:"max-timeout"`

	// LockEvidenceTTL is the validity of lock evidence claims.
	LockEvidenceTTL time.Duration `mapstructure:"lock-ttl"`

	// CrashCheckInterval is the period of the stalled session check. Zero
	// disables it.
	CrashCheckInterval time.Duration `mapstructure:"crash-check"`

	// ServerTimeout bounds the ledger operations run while answering a
	// counterpart.
	ServerTimeout time.Duration `mapstructure:"server-timeout"`

	// Key is the private key of the gateway.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		BindAddr:           DefaultBindAddr,
		ServiceAddr:        DefaultServiceAddr,
		TCPTimeout:         DefaultTCPTimeout,
		MaxPool:            DefaultMaxPool,
		Store:              DefaultStore,
		DatabaseDir:        DefaultDatabaseDir(),
		Version:            DefaultVersion,
		DLTSystem:          DefaultDLTSystem,
		MaxRetries:         DefaultMaxRetries,
		MaxTimeout:         DefaultMaxTimeout,
		LockEvidenceTTL:    DefaultLockEvidenceTTL,
		CrashCheckInterval: DefaultCrashCheckInterval,
		ServerTimeout:      DefaultServerTimeout,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logger returns a formatted logrus Entry, with prefix set to "satp".
func (c *Config) Logger() *logrus.Entry {
	return c.BaseLogger().WithField("prefix", "satp")
}

// BaseLogger returns the logger behind Logger, creating it on first use.
func (c *Config) BaseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level gateway
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".SATP")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "SATP")
		} else {
			return filepath.Join(home, ".satp")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
