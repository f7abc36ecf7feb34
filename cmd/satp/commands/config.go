package commands

import (
	"os"

	"github.com/mosaicnetworks/satp/src/config"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//AddConfigFlags adds the flags shared by the commands that start a gateway
func AddConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Prefix of the info and debug log files")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the gateway")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for the gateway")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")

	// Protocol
	cmd.Flags().String("version", _config.Version, "Protocol version of new sessions")
	cmd.Flags().String("dlt", _config.DLTSystem, "Ledger fronted by the gateway")
	cmd.Flags().StringSlice("supported-dlts", _config.SupportedDLTs, "Source ledgers accepted by the gateway")
	cmd.Flags().Int("max-retries", _config.MaxRetries, "Retries of an exchange")
	cmd.Flags().Duration("max-timeout", _config.MaxTimeout, "Timeout of an exchange attempt")
	cmd.Flags().Duration("lock-ttl", _config.LockEvidenceTTL, "Validity of lock evidence")
	cmd.Flags().Duration("crash-check", _config.CrashCheckInterval, "Period of the stalled session check")
	cmd.Flags().Duration("server-timeout", _config.ServerTimeout, "Timeout of ledger operations run for a counterpart")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logger := _config.BaseLogger()
	logger.Level = config.LogLevel(_config.LogLevel)

	if _config.LogFile != "" {
		addFileHook(logger, _config.LogFile)
	}

	logFields := logrus.Fields{
		"DataDir":            _config.DataDir,
		"BindAddr":           _config.BindAddr,
		"AdvertiseAddr":      _config.AdvertiseAddr,
		"ServiceAddr":        _config.ServiceAddr,
		"NoService":          _config.NoService,
		"MaxPool":            _config.MaxPool,
		"Store":              _config.Store,
		"LogLevel":           _config.LogLevel,
		"Moniker":            _config.Moniker,
		"TCPTimeout":         _config.TCPTimeout,
		"DLTSystem":          _config.DLTSystem,
		"SupportedDLTs":      _config.SupportedDLTs,
		"MaxRetries":         _config.MaxRetries,
		"MaxTimeout":         _config.MaxTimeout,
		"LockEvidenceTTL":    _config.LockEvidenceTTL,
		"CrashCheckInterval": _config.CrashCheckInterval,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("Config")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/satp.toml (.json, .yaml also work)
	viper.SetConfigName("satp")          // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addFileHook copies info and debug lines to <prefix>_info.log and
// <prefix>_debug.log.
func addFileHook(logger *logrus.Logger, prefix string) {
	pathMap := lfshook.PathMap{}

	infoFile := prefix + "_info.log"
	if f, err := os.OpenFile(infoFile, os.O_CREATE|os.O_WRONLY, 0666); err != nil {
		logger.Infof("Failed to open %s file, using default stderr", infoFile)
	} else {
		f.Close()
		pathMap[logrus.InfoLevel] = infoFile
	}

	debugFile := prefix + "_debug.log"
	if f, err := os.OpenFile(debugFile, os.O_CREATE|os.O_WRONLY, 0666); err != nil {
		logger.Infof("Failed to open %s file, using default stderr", debugFile)
	} else {
		f.Close()
		pathMap[logrus.DebugLevel] = debugFile
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
