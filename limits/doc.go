// Package limits centralizes the size bounds enforced by securemsg.
//
// # Size Hierarchy
//
// Two independent bounds apply to every message:
//
//   - The RSA-OAEP capacity. A single-shot OAEP encryption with SHA-256 can
//     carry at most k - 2*32 - 2 plaintext bytes, where k is the modulus size
//     in bytes (190 bytes for a 2048-bit key). [OAEPCapacity] computes it and
//     [ValidatePlaintext] rejects anything larger with [ErrPayloadTooLarge].
//     Nothing is ever truncated.
//
//   - The frame bound. A frame's advertised length is checked against
//     [MaxFrameSize] (64 KiB) before any receive buffer is allocated, so a
//     corrupted or hostile peer cannot request an unbounded allocation.
//     [ValidateFrameLength] returns [ErrFrameTooLarge].
//
// # Usage
//
//	if err := limits.ValidatePlaintext(plaintext, pub.Size()); err != nil {
//	    // errors.Is(err, limits.ErrPayloadTooLarge)
//	}
//
//	if err := limits.ValidateFrameLength(length, limits.MaxFrameSize); err != nil {
//	    // errors.Is(err, limits.ErrFrameTooLarge)
//	}
package limits
