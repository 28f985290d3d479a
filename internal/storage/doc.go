// Package storage defines the Backend contract shared by every key-value
// backend and its two implementations: SecureStorage over a secret keystore
// and PreferenceStorage over a preference suite.
//
// Each backend instance serializes its own operations with a mutex. Nothing
// coordinates separate instances: two backends built over the same keystore
// or suite can interleave, and callers that construct more than one must
// coordinate access themselves.
//
// The backends differ on removal of absent entries. SecureStorage treats
// "item not found" on Remove and RemoveAll as success, matching keystore
// delete semantics. PreferenceStorage reports ErrRemovalFailed for a missing
// key or an empty suite unless PreferenceOptions.IgnoreMissing is set.
package storage
