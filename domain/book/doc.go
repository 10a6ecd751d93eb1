// Package book implements the resting-order index for one side of a
// limit-order book over a flat key-value store. Orders are keyed by
// monotonically probed odd identifiers (2*price+1, +2 per collision),
// so identifier order is price order with FIFO tie-breaking. Tree
// shape is derived from arithmetic on those identifiers: the aggregate
// ancestor of any id is the id with its lowest set bit cleared, and no
// parent pointers are ever stored.
//
// The package is strictly sequential. Every exported operation is a
// complete synchronous state transition; atomicity across the writes
// of one operation is the storage implementation's job (see
// infra/state).
package book
