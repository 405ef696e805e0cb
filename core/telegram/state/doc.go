// Package state holds per-user quiz sessions: the typed session state
// machine, pluggable stores (bounded memory, SQL, and a fallback wrapper
// that degrades to memory), the Manager that serializes read-modify-write,
// and a Sweeper that prunes expired entries in the background.
package state
