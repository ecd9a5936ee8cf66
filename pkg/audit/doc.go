// Package audit provides append-only audit logging for the SSO subsystem.
//
// Every configuration change, login attempt, logout, and domain lifecycle
// event produces exactly one audit event. Events are never updated or
// deleted; the database logger only inserts and the file logger only
// appends. Query access is read-only and filtered by workspace.
//
// Three logger implementations are provided: DBLogger (PostgreSQL),
// FileLogger (newline-delimited JSON with rotation), and MemoryLogger for
// tests. MultiLogger fans out to several destinations.
package audit
