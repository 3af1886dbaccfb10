package recordlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// errTornTail marks an incomplete final frame: a partial length prefix, or a
// prefix promising more bytes than the file holds.
var errTornTail = errors.New("recordlog: torn trailing frame")

// frameReader reads frames sequentially from the start of a file, reusing a
// single payload buffer bounded by max.
type frameReader struct {
	r      *bufio.Reader
	path   string
	size   int64
	offset int64 // start of the next frame
	max    int
	buf    []byte
}

func newFrameReader(f *os.File, path string, max int) (*frameReader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, &IOError{Op: "stat", Path: path, Err: err}
	}
	return &frameReader{
		r:    bufio.NewReader(f),
		path: path,
		size: info.Size(),
		max:  max,
	}, nil
}

// next returns the next payload, io.EOF at a clean frame boundary, or
// errTornTail for an incomplete final frame.
func (fr *frameReader) next() ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, errTornTail
		default:
			return nil, &IOError{Op: "read", Path: fr.path, Err: err}
		}
	}

	length := binary.LittleEndian.Uint32(header[:])

	// Check before allocating: a corrupt prefix must not drive allocation.
	if uint64(length) > uint64(fr.max) {
		return nil, &FrameError{Path: fr.path, Offset: fr.offset, Length: length, Kind: ErrFrameTooLarge}
	}
	if int64(length) > fr.size-fr.offset-HeaderSize {
		return nil, errTornTail
	}

	if cap(fr.buf) < int(length) {
		fr.buf = make([]byte, length)
	}
	fr.buf = fr.buf[:length]

	if _, err := io.ReadFull(fr.r, fr.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errTornTail
		}
		return nil, &IOError{Op: "read", Path: fr.path, Err: err}
	}

	fr.offset += HeaderSize + int64(length)
	return fr.buf, nil
}
