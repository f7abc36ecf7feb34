// Package wal implements the write-ahead audit log of a gateway.
//
// Every protocol phase is bounded by entries tagged with a stage: the sender
// writes "init" before a request leaves, the receiver writes "exec" before it
// validates a message and "done" once the session is updated, and the
// responder writes "ack" before its reply leaves. Each entry carries a
// snapshot of the session at that point. The log is append-only and never
// compacted; recovery reads it as the source of truth.
package wal
