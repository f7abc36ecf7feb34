// Package satp assembles a gateway from a configuration.
//
// The SATP object creates the key, the stores, the ledger connector, the
// transport, the gateway and the HTTP service, then runs them. With
// Config.Store set, the session store, the audit log and the claim store share
// one badger database under Config.DatabaseDir, so a restarted gateway finds
// its sessions and recovers them. Counterparts are read from the gateways.json
// file of the data directory.
package satp
