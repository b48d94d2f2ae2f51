// Package ocid implements content IDs (OCIDs): compact identifiers that
// address content by its length and a 32-byte digest.
//
// # Memory representation
//
// Every ID starts with a version tag followed by a body defined by that
// version. Two layouts exist:
//
//	| Layout | Version | Size     | Hash      | Total
//	| :----- | :------ | :------- | :-------- | :----
//	| V0     | 1 byte  | 6 bytes  | 32 bytes  | 39
//	| Wide   | 2 bytes | 8 bytes  | 32 bytes  | 42
//
// The version is always zero and sizes are big-endian, so the raw bytes of
// an ID sort by content size first and by hash second.
//
// # Text form
//
// IDs render as Base64 (see package b64) with a sorted alphabet, for example
//
//	------IsAAc5y5h0P2AEb3mPtfrloZ2IVxrdMhEfUeAeo6iwUjr-
//
// Comparing two IDs as raw bytes, as parsed fields, or as text always gives
// the same result. The text form is encode-only.
//
// # Security considerations
//
// IDs rely on the collision resistance of their digest, but they are content
// addresses, not secrets: comparisons are deliberately not constant time.
package ocid
