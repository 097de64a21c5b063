// Package protocol owns the tag=value message codec.
//
// Ownership boundary:
// - Message field storage and typed accessors
// - encode with BodyLength/CheckSum framing fields
// - decode with structural, length and checksum verification
package protocol
