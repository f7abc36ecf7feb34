// Package config defines the configuration for a gateway.
//
// Regardless of how a gateway is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, a gateway relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // a plain text file containing the raw private key (cf. satp keygen).
//  gateways.json // (optional) a JSON file listing the counterpart gateways.
//  satp.toml // (optional) configuration values, overridden by flags.
package config
