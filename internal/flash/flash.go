package flash

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roach88/loomstore/internal/metrics"
)

// ErasedByte is the value of every byte of an erased page.
const ErasedByte byte = 0xFF

// PageID identifies a page in [0, PageCount).
type PageID int

// Index returns the page index.
func (p PageID) Index() int { return int(p) }

// Device is the flash-like surface consumed by block-oriented engines.
//
// Implementations are not safe for concurrent use; callers serialize access.
// Out-of-range addressing panics with *BoundsError and, when enforcement is
// on, a write that sets a cleared bit panics with *BitViolationError.
type Device interface {
	PageCount() int
	PageSize() int
	Erase(page PageID) error
	Read(page PageID, offset int, buf []byte) error
	Write(page PageID, offset int, data []byte) error
}

// Options are the runtime switches for a device.
type Options struct {
	// EnforceFlashBits makes Write verify that it only clears bits.
	// Costs one extra read per write.
	EnforceFlashBits bool

	// Durable forces written data to stable storage before Erase/Write return.
	Durable bool

	Logger  *zerolog.Logger
	Metrics *metrics.Recorder
}

// BoundsError reports an out-of-range page, offset or length.
// It is raised as a panic: it always means a caller bug.
type BoundsError struct {
	Page      PageID
	Offset    int
	Length    int
	PageCount int
	PageSize  int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("flash: access out of bounds: page %d offset %d length %d (geometry %d pages x %d bytes)",
		e.Page, e.Offset, e.Length, e.PageCount, e.PageSize)
}

// BitViolationError reports a write that would set a bit cleared since the
// last erase. It is raised as a panic.
type BitViolationError struct {
	Page   PageID
	Offset int // in-page offset of the first violating byte
	Old    byte
	New    byte
}

func (e *BitViolationError) Error() string {
	return fmt.Sprintf("flash: write violates flash bit rules at page %d offset %d: old=0x%02x new=0x%02x",
		e.Page, e.Offset, e.Old, e.New)
}

// IOError wraps a failure of the backing storage. It is recoverable.
type IOError struct {
	Op     string
	Page   PageID
	Offset int
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("flash: %s page %d offset %d: %v", e.Op, e.Page, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// geometry holds the fixed page layout shared by the implementations.
type geometry struct {
	pageCount int
	pageSize  int
}

// checkBounds panics unless [offset, offset+length) lies inside page.
func (g geometry) checkBounds(page PageID, offset, length int) {
	if page < 0 || page.Index() >= g.pageCount ||
		offset < 0 || length < 0 || offset > g.pageSize || length > g.pageSize-offset {
		panic(&BoundsError{
			Page:      page,
			Offset:    offset,
			Length:    length,
			PageCount: g.pageCount,
			PageSize:  g.pageSize,
		})
	}
}

// addr is the absolute byte offset of (page, offset).
func (g geometry) addr(page PageID, offset int) int64 {
	return int64(page.Index())*int64(g.pageSize) + int64(offset)
}

func (g geometry) size() int64 {
	return int64(g.pageCount) * int64(g.pageSize)
}

// checkBits panics if writing data over old would set any cleared bit.
func checkBits(page PageID, offset int, old, data []byte) {
	for i, n := range data {
		if old[i]&n != n {
			panic(&BitViolationError{Page: page, Offset: offset + i, Old: old[i], New: n})
		}
	}
}

func validGeometry(pageCount, pageSize int) error {
	if pageCount <= 0 || pageSize <= 0 {
		return fmt.Errorf("flash: invalid geometry %d pages x %d bytes", pageCount, pageSize)
	}
	return nil
}
