// Package pomelo maps backend records to in-memory objects. Each model
// type keeps exactly one live instance per primary key value in its
// identity map, runs declarative per-key encode/decode rules between
// application-land and backend-land shapes, validates records through
// an asynchronous rule engine, and sequences load/save/destroy against
// a pluggable storage adapter. All storage outcomes arrive through
// error-first callbacks; the core itself persists nothing.
package pomelo
