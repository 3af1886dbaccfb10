// Package codec serializes model records to the payload bytes stored in a
// record log frame.
//
// A payload is the record's fields in declaration order:
//
//   - text: uvarint byte length, then the bytes
//   - time: zig-zag varint Unix seconds, then uvarint nanoseconds
//
// Optional references encode as empty text. Decoding rejects text longer than
// the model bound for that field before copying it, and rejects trailing
// bytes. There is no version byte.
package codec
