// Package keystore implements a secret keystore addressed by attribute
// queries rather than by direct keys. Every operation answers with a Status
// code instead of an error, so callers decide which outcomes are failures:
// "item not found" is an ordinary answer to a query.
//
// Two clients are provided: SQLite, which persists items encrypted under a
// passphrase-protected master key, and Memory, which keeps items in process.
package keystore
