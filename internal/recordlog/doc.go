// Package recordlog implements an append-only log of length-prefixed frames.
//
// # File format
//
// A log file is a flat sequence of frames with no header, magic number,
// version or checksum:
//
//	[u32 little-endian length][length bytes of payload]
//
// Frames are immutable once written. File order is insertion order.
//
// # Scans
//
// Every scan reads the file sequentially from byte 0; there is no index and
// no persisted cursor. Scan decodes each payload, filters on the decoded
// record, and maps only the records it keeps.
//
// # End of file
//
//   - A clean frame boundary ends the scan.
//   - A partial length prefix, or a prefix promising more bytes than remain,
//     is a torn tail left by an interrupted append. It ends the scan without
//     error. Recover truncates it, and so does the next append.
//   - A prefix above the maximum frame size is rejected before allocation
//     with a *FrameError wrapping ErrFrameTooLarge.
//
// Within-frame bit corruption is not detected.
package recordlog
