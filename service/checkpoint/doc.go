// Package checkpoint owns the scan cursor and the loop that consumes batches
// through the oracle.
//
// The cursor (state.json) advances by one per definitive outcome and never
// for a transient one. A batch is left only once its completion marker
// exists and every line has been probed.
package checkpoint
