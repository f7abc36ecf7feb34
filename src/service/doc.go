// Package service implements a read-only HTTP API, routed with chi, reporting the sessions and
// audit log of a gateway.
//
//  GET /stats               counters of the gateway
//  GET /sessions            all sessions
//  GET /sessions/<id>       one session
//  GET /sessions/<id>/log   the audit entries of a session
package service
