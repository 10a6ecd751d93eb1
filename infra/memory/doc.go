// Package memory provides small allocation helpers. Pool wraps
// sync.Pool with a typed interface; the WAL uses it to recycle
// frame scratch buffers on the append path.
package memory
