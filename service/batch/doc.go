// Package batch produces fixed-size batches of unique candidates under
// <root>/batches.
//
// Each batch N consists of random_N.txt (one identifier per line, appended
// and synced as claimed), random_N.prov (the template key of every line,
// appended before the line itself), random_N.meta.json (the final
// provenance map) and random_N.complete. The marker is written last, after
// the target count is reached and the meta file is in place; a batch without
// it is still growing, or was interrupted and is resumed on the next
// EnsureWindow. Batch production is claimed per process, so two producers
// never write the same batch.
package batch
