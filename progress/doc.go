// Package progress keeps aggregated scan counters for a single run. The
// tracker travels in the context so producers and the scanner can update it
// without a global registry.
package progress
