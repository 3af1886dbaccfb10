package flash

import "github.com/roach88/loomstore/internal/metrics"

// Memory is an in-memory Device with the same addressing, erase and bit
// rules as File. Durable is ignored.
type Memory struct {
	geometry

	data    []byte
	opts    Options
	metrics *metrics.Recorder
}

var _ Device = (*Memory)(nil)

// NewMemory returns a fully erased in-memory device.
func NewMemory(pageCount, pageSize int, opts Options) (*Memory, error) {
	if err := validGeometry(pageCount, pageSize); err != nil {
		return nil, err
	}
	g := geometry{pageCount: pageCount, pageSize: pageSize}
	data := make([]byte, g.size())
	for i := range data {
		data[i] = ErasedByte
	}
	return &Memory{geometry: g, data: data, opts: opts, metrics: opts.Metrics}, nil
}

// PageCount returns the fixed number of pages.
func (m *Memory) PageCount() int { return m.pageCount }

// PageSize returns the fixed page size in bytes.
func (m *Memory) PageSize() int { return m.pageSize }

// Erase resets every byte of page to ErasedByte.
func (m *Memory) Erase(page PageID) error {
	m.checkBounds(page, 0, m.pageSize)
	start := m.addr(page, 0)
	region := m.data[start : start+int64(m.pageSize)]
	for i := range region {
		region[i] = ErasedByte
	}
	m.metrics.Incr(metrics.FlashErase)
	return nil
}

// Read fills buf from page starting at offset.
func (m *Memory) Read(page PageID, offset int, buf []byte) error {
	m.checkBounds(page, offset, len(buf))
	start := m.addr(page, offset)
	copy(buf, m.data[start:start+int64(len(buf))])
	m.metrics.Incr(metrics.FlashRead)
	return nil
}

// Write stores data in page at offset. With EnforceFlashBits it panics
// with a *BitViolationError if a bit would go from 0 to 1.
func (m *Memory) Write(page PageID, offset int, data []byte) error {
	m.checkBounds(page, offset, len(data))
	start := m.addr(page, offset)
	region := m.data[start : start+int64(len(data))]
	if m.opts.EnforceFlashBits {
		checkBits(page, offset, region, data)
	}
	copy(region, data)
	m.metrics.Incr(metrics.FlashWrite)
	return nil
}
