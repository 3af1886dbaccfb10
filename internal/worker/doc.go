// Package worker runs blocking storage work on a dedicated goroutine.
//
// The flash device and the record log perform synchronous file I/O with no
// internal locking and no cancellation. Callers hand that work to a Worker
// and receive results over a completion channel (Call, Do), so the calling
// goroutine never blocks on the disk and every operation against a
// component sees a consistent total order.
//
// A caller's context bounds its wait only. Once a job starts it runs to
// completion. Panics in a job are not recovered: they signal bounds or
// flash-bit violations, which are programming errors.
package worker
