// Package area holds the server-wide Global Area, its service table and the
// process-wide registry through which clients discover running servers.
//
// A Global Area outlives any single run of its server: a restarted server
// finds its previous area through the registry and reattaches to it, and
// clients holding a reference keep seeing a consistent (if not READY) area
// while the server is down. Fields that clients read while the server
// writes them are atomics; the service table and linkage information are
// guarded by the area's lock.
package area
