package flash

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/roach88/loomstore/internal/logger"
	"github.com/roach88/loomstore/internal/metrics"
)

const (
	// fillChunk bounds the buffer used to (re)initialize a whole image.
	fillChunk = 8192
	fileMode  = 0o644
)

// File is a Device backed by one file holding all pages back to back:
//
//	addr = page * pageSize + offset
//
// There is no header and no metadata; the file is the flash array.
type File struct {
	geometry

	path    string
	file    *os.File
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Recorder

	// Scratch buffers reused across calls.
	eraseBuf []byte
	oldBuf   []byte
	readBuf  []byte
}

var _ Device = (*File)(nil)

// Open opens the flash image at path, creating it if needed.
//
// When the file is missing or its size is not pageCount*pageSize it is
// replaced by a fully erased image of the exact size. The replacement is
// built in a temporary file and renamed into place, so an existing image is
// either fully reinitialized or left untouched.
func Open(path string, pageCount, pageSize int, opts Options) (*File, error) {
	if err := validGeometry(pageCount, pageSize); err != nil {
		return nil, err
	}

	g := geometry{pageCount: pageCount, pageSize: pageSize}
	log := logger.Component(logger.OrNop(opts.Logger), "flash").With().Str("path", path).Logger()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("flash: create directory: %w", err)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Int64("size", g.size()).Msg("creating erased flash image")
		if err := initialize(path, g.size(), opts.Durable); err != nil {
			return nil, err
		}
		opts.Metrics.Incr(metrics.FlashReinit)
	case err != nil:
		return nil, fmt.Errorf("flash: stat %s: %w", path, err)
	case info.Size() != g.size():
		log.Warn().
			Int64("size", info.Size()).
			Int64("expected", g.size()).
			Msg("flash image size mismatch, reinitializing")
		if err := initialize(path, g.size(), opts.Durable); err != nil {
			return nil, err
		}
		opts.Metrics.Incr(metrics.FlashReinit)
	}

	f, err := os.OpenFile(path, os.O_RDWR, fileMode)
	if err != nil {
		return nil, fmt.Errorf("flash: open %s: %w", path, err)
	}

	// Chunk size friendly to SD/FAT style media.
	chunk := min(4096, max(pageSize, 512))
	erase := make([]byte, chunk)
	for i := range erase {
		erase[i] = ErasedByte
	}

	return &File{
		geometry: g,
		path:     path,
		file:     f,
		opts:     opts,
		log:      log,
		metrics:  opts.Metrics,
		eraseBuf: erase,
	}, nil
}

// initialize writes an erased image of size bytes next to path and renames
// it over path. When durable, the directory is synced so the rename itself
// survives a crash.
func initialize(path string, size int64, durable bool) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".init-*")
	if err != nil {
		return fmt.Errorf("flash: create init file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = fillErased(tmp, size); err != nil {
		return fmt.Errorf("flash: fill image: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("flash: sync image: %w", err)
	}
	if err = tmp.Chmod(fileMode); err != nil {
		return fmt.Errorf("flash: chmod image: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("flash: close image: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("flash: install image: %w", err)
	}
	if durable {
		return syncDir(filepath.Dir(path))
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("flash: sync directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("flash: sync directory: %w", err)
	}
	return nil
}

func fillErased(w io.Writer, total int64) error {
	var buf [fillChunk]byte
	for i := range buf {
		buf[i] = ErasedByte
	}
	for remaining := total; remaining > 0; {
		n := min(remaining, int64(len(buf)))
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// PageCount returns the fixed number of pages.
func (f *File) PageCount() int { return f.pageCount }

// PageSize returns the fixed page size in bytes.
func (f *File) PageSize() int { return f.pageSize }

// Erase fills page with ErasedByte.
func (f *File) Erase(page PageID) error {
	f.checkBounds(page, 0, f.pageSize)

	start := f.addr(page, 0)
	for written := 0; written < f.pageSize; {
		n := min(f.pageSize-written, len(f.eraseBuf))
		if _, err := f.file.WriteAt(f.eraseBuf[:n], start+int64(written)); err != nil {
			return &IOError{Op: "erase", Page: page, Offset: written, Err: err}
		}
		written += n
	}
	if err := f.sync(); err != nil {
		return &IOError{Op: "erase", Page: page, Err: err}
	}

	f.metrics.Incr(metrics.FlashErase)
	return nil
}

// Read fills buf from page starting at offset.
func (f *File) Read(page PageID, offset int, buf []byte) error {
	f.checkBounds(page, offset, len(buf))

	if err := f.readAt(buf, page, offset); err != nil {
		return &IOError{Op: "read", Page: page, Offset: offset, Err: err}
	}
	f.metrics.Incr(metrics.FlashRead)
	return nil
}

// Write stores data in page at offset.
//
// With EnforceFlashBits the current contents are read first and the call
// panics with *BitViolationError if any byte would gain a set bit.
func (f *File) Write(page PageID, offset int, data []byte) error {
	f.checkBounds(page, offset, len(data))
	start := time.Now()

	if f.opts.EnforceFlashBits {
		f.oldBuf = grow(f.oldBuf, len(data))
		if err := f.readAt(f.oldBuf, page, offset); err != nil {
			return &IOError{Op: "write", Page: page, Offset: offset, Err: err}
		}
		checkBits(page, offset, f.oldBuf, data)
	}

	if _, err := f.file.WriteAt(data, f.addr(page, offset)); err != nil {
		return &IOError{Op: "write", Page: page, Offset: offset, Err: err}
	}
	if err := f.sync(); err != nil {
		return &IOError{Op: "write", Page: page, Offset: offset, Err: err}
	}

	f.metrics.Incr(metrics.FlashWrite)
	f.metrics.Since(metrics.FlashWriteLatency, start)
	return nil
}

// Digest returns the xxhash64 of a page, read in scratch-sized chunks.
func (f *File) Digest(page PageID) (uint64, error) {
	f.checkBounds(page, 0, f.pageSize)

	d := xxhash.New()
	err := f.eachChunk(page, func(chunk []byte) {
		d.Write(chunk)
	})
	if err != nil {
		return 0, err
	}
	return d.Sum64(), nil
}

// IsErased reports whether every byte of page is ErasedByte.
func (f *File) IsErased(page PageID) (bool, error) {
	f.checkBounds(page, 0, f.pageSize)

	erased := true
	err := f.eachChunk(page, func(chunk []byte) {
		for _, b := range chunk {
			if b != ErasedByte {
				erased = false
				return
			}
		}
	})
	return erased, err
}

// Close releases the backing file. Later operations fail with an *IOError
// wrapping os.ErrClosed.
func (f *File) Close() error {
	return f.file.Close()
}

func (f *File) eachChunk(page PageID, fn func([]byte)) error {
	f.readBuf = grow(f.readBuf, len(f.eraseBuf))
	for off := 0; off < f.pageSize; {
		n := min(f.pageSize-off, len(f.readBuf))
		if err := f.readAt(f.readBuf[:n], page, off); err != nil {
			return &IOError{Op: "read", Page: page, Offset: off, Err: err}
		}
		fn(f.readBuf[:n])
		off += n
	}
	return nil
}

// readAt reads exactly len(buf) bytes; a short read is io.ErrUnexpectedEOF.
func (f *File) readAt(buf []byte, page PageID, offset int) error {
	n, err := f.file.ReadAt(buf, f.addr(page, offset))
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (f *File) sync() error {
	if !f.opts.Durable {
		return nil
	}
	return datasync(f.file)
}

func grow(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}
