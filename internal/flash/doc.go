// Package flash emulates a NOR-flash chip as a fixed grid of fixed-size
// pages.
//
// # Addressing
//
// Page p occupies bytes [p*pageSize, (p+1)*pageSize) of the backing store.
// There is no page table: the device is a flat byte array partitioned into
// pages. Every read and write must satisfy offset+len <= pageSize.
//
// # Erase/write semantics
//
// Erase sets every byte of a page to 0xFF. With Options.EnforceFlashBits, a
// write may only clear bits (old&new == new for every byte) until the page is
// erased again, as on real flash.
//
// # Failure classes
//
//   - *BoundsError (panic): the caller addressed outside the device.
//   - *BitViolationError (panic): the caller broke erase-before-write.
//   - *IOError (returned): the backing file failed; the caller may retry.
//
// # Concurrency
//
// Operations are blocking file I/O with no internal locking and no
// cancellation. Run them on a dedicated goroutine (see package worker), never
// inline on a shared event loop.
package flash
