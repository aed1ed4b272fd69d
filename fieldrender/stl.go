package fieldrender

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// STLWriter is a [TriangleSink] writing binary STL. If the destination is an
// [io.WriteSeeker] triangles are streamed and the triangle count is patched on
// Close, otherwise the body is buffered in memory until Close.
// Triangles with non finite vertices are skipped.
type STLWriter struct {
	dst     io.Writer
	ws      io.WriteSeeker
	bw      *bufio.Writer
	body    bytes.Buffer
	start   int64
	count   uint32
	skipped int
	err     error
	closed  bool
	header  [stlHeaderSize]byte
	scratch [stlTriangleSize]byte
}

// NewSTLWriter returns an STL writer. header is truncated to 80 bytes.
func NewSTLWriter(w io.Writer, header string) (*STLWriter, error) {
	if w == nil {
		return nil, errors.New("nil STL destination")
	}
	sw := &STLWriter{dst: w}
	copy(sw.header[:], header)
	if ws, ok := w.(io.WriteSeeker); ok {
		start, err := ws.Seek(0, io.SeekCurrent)
		if err == nil {
			sw.ws = ws
			sw.start = start
			sw.bw = bufio.NewWriter(ws)
			var count [4]byte
			sw.bw.Write(sw.header[:])
			_, err = sw.bw.Write(count[:])
			if err != nil {
				return nil, err
			}
		}
	}
	return sw, nil
}

// AddTriangle implements [TriangleSink]. It returns false after a write error.
func (sw *STLWriter) AddTriangle(t ms3.Triangle) bool {
	if sw.err != nil || sw.closed {
		return false
	}
	for _, v := range t {
		if !finite32(v.X) || !finite32(v.Y) || !finite32(v.Z) {
			sw.skipped++
			return true
		}
	}
	if sw.count == math.MaxUint32 {
		sw.err = errors.New("too many triangles for STL")
		return false
	}
	b := sw.scratch[:]
	n := Normal(t)
	putVec(b[0:], n)
	putVec(b[12:], t[0])
	putVec(b[24:], t[1])
	putVec(b[36:], t[2])
	binary.LittleEndian.PutUint16(b[48:], 0)
	if sw.bw != nil {
		_, sw.err = sw.bw.Write(b)
	} else {
		sw.body.Write(b)
	}
	if sw.err != nil {
		return false
	}
	sw.count++
	return true
}

// Count returns the number of triangles written.
func (sw *STLWriter) Count() int { return int(sw.count) }

// Skipped returns the number of triangles discarded for non finite vertices.
func (sw *STLWriter) Skipped() int { return sw.skipped }

// Close finishes the STL. It does not close the underlying writer.
func (sw *STLWriter) Close() error {
	if sw.closed {
		return sw.err
	}
	sw.closed = true
	if sw.err != nil {
		return sw.err
	}
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], sw.count)
	if sw.bw == nil {
		if _, err := sw.dst.Write(sw.header[:]); err != nil {
			sw.err = err
			return err
		}
		if _, err := sw.dst.Write(count[:]); err != nil {
			sw.err = err
			return err
		}
		_, sw.err = sw.body.WriteTo(sw.dst)
		return sw.err
	}
	if sw.err = sw.bw.Flush(); sw.err != nil {
		return sw.err
	}
	end, err := sw.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		sw.err = err
		return err
	}
	if _, err = sw.ws.Seek(sw.start+stlHeaderSize, io.SeekStart); err != nil {
		sw.err = err
		return err
	}
	if _, err = sw.ws.Write(count[:]); err != nil {
		sw.err = err
		return err
	}
	_, sw.err = sw.ws.Seek(end, io.SeekStart)
	return sw.err
}

func putVec(b []byte, v ms3.Vec) {
	binary.LittleEndian.PutUint32(b[0:], math32.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math32.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math32.Float32bits(v.Z))
}

func finite32(f float32) bool {
	return !math32.IsNaN(f) && !math32.IsInf(f, 0)
}

// ReadSTL decodes a binary STL stream into triangles.
func ReadSTL(r io.Reader) (header string, tris []ms3.Triangle, err error) {
	var hdr [stlHeaderSize + 4]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return "", nil, err
	}
	header = string(bytes.TrimRight(hdr[:stlHeaderSize], "\x00"))
	n := binary.LittleEndian.Uint32(hdr[stlHeaderSize:])
	var b [stlTriangleSize]byte
	tris = make([]ms3.Triangle, 0, min(int(n), 1<<20))
	for i := uint32(0); i < n; i++ {
		if _, err = io.ReadFull(r, b[:]); err != nil {
			return header, tris, err
		}
		var t ms3.Triangle
		for j := range t {
			t[j] = getVec(b[12+12*j:])
		}
		tris = append(tris, t)
	}
	return header, tris, nil
}

func getVec(b []byte) ms3.Vec {
	return ms3.Vec{
		X: math32.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Y: math32.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Z: math32.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}
