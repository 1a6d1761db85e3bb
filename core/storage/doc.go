// Package storage keeps per-location stock behind a single robotic arm.
//
// A StorageLocation's load is the stock quantity: the Ledger validates a
// whole delta before stepping the location, so a failed add or removal leaves
// the location untouched. Removals drive the arm Interlock through an
// activate, move, deactivate cycle inside the Manager critical section.
package storage
