// Package service orchestrates the core components of the engine:
// the order index, the operation WAL, the durable state store, the
// fill outbox and the market-data tick feed.
//
// BookService is the ONLY write entry point into the system. Every
// mutation is logged before it is applied, and applied atomically.
package service
