// Package peers defines the counterpart gateways this gateway can transfer
// assets to, and the gateways.json file that lists them.
//
// A peer is identified by its public key. It also specifies the address where
// it accepts RPCs, a non-unique user-friendly moniker, and the DLT systems it
// fronts. The transfer command looks counterparts up by moniker and takes the
// recipient key and address of the session from the matching entry.
//
// Upon starting up, a gateway looks for a gateways.json file in its data
// directory. The file is optional; without it the gateway only answers
// transfers started by others.
package peers
