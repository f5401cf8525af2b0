package graph

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"
)

const (
	magicBytes   = "FLOWCNTS"
	version      = uint32(1)
	maxSegments  = 20_000_000
	maxGeoPoints = 200_000_000
	maxTrips     = 50_000_000
	maxTripEdges = 500_000_000
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic        [8]byte
	Version      uint32
	NumSegments  uint32
	NumGeoPoints uint32
	NumTrips     uint32
	NumTripEdges uint32
}

// WriteBinary serializes a Network to path. The file is written to a
// temporary name and renamed into place.
func WriteBinary(path string, n *Network) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	hdr := fileHeader{
		Version:      version,
		NumSegments:  n.NumSegments,
		NumGeoPoints: uint32(len(n.GeoLat)),
		NumTrips:     uint32(n.NumTrips()),
		NumTripEdges: uint32(len(n.TripEdges)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	geoFirstOut := n.GeoFirstOut
	if len(geoFirstOut) == 0 {
		geoFirstOut = []uint32{0}
	}
	tripFirstOut := n.TripFirstOut
	if len(tripFirstOut) == 0 {
		tripFirstOut = []uint32{0}
	}

	sections := []struct {
		name  string
		write func() error
	}{
		{"SegWayID", func() error { return writeSlice(w, n.SegWayID) }},
		{"SegFlags", func() error { return writeSlice(w, n.SegFlags) }},
		{"SegLength", func() error { return writeSlice(w, n.SegLength) }},
		{"GeoFirstOut", func() error { return writeSlice(w, geoFirstOut) }},
		{"GeoLat", func() error { return writeSlice(w, n.GeoLat) }},
		{"GeoLon", func() error { return writeSlice(w, n.GeoLon) }},
		{"GeoNodeID", func() error { return writeSlice(w, n.GeoNodeID) }},
		{"TripFirstOut", func() error { return writeSlice(w, tripFirstOut) }},
		{"TripEdges", func() error { return writeSlice(w, n.TripEdges) }},
	}
	for _, s := range sections {
		if err := s.write(); err != nil {
			return fmt.Errorf("write %s: %w", s.name, err)
		}
	}

	// CRC32 trailer.
	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// ReadBinary deserializes a Network written by WriteBinary.
func ReadBinary(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumSegments > maxSegments || hdr.NumGeoPoints > maxGeoPoints {
		return nil, fmt.Errorf("segment data exceeds limits (%d segments, %d points)", hdr.NumSegments, hdr.NumGeoPoints)
	}
	if hdr.NumTrips > maxTrips || hdr.NumTripEdges > maxTripEdges {
		return nil, fmt.Errorf("trip data exceeds limits (%d trips, %d edges)", hdr.NumTrips, hdr.NumTripEdges)
	}

	n := &Network{NumSegments: hdr.NumSegments}
	segs := int(hdr.NumSegments)
	pts := int(hdr.NumGeoPoints)

	if n.SegWayID, err = readSlice[int64](r, segs); err != nil {
		return nil, fmt.Errorf("read SegWayID: %w", err)
	}
	if n.SegFlags, err = readSlice[uint8](r, segs); err != nil {
		return nil, fmt.Errorf("read SegFlags: %w", err)
	}
	if n.SegLength, err = readSlice[uint32](r, segs); err != nil {
		return nil, fmt.Errorf("read SegLength: %w", err)
	}
	if n.GeoFirstOut, err = readSlice[uint32](r, segs+1); err != nil {
		return nil, fmt.Errorf("read GeoFirstOut: %w", err)
	}
	if n.GeoLat, err = readSlice[float64](r, pts); err != nil {
		return nil, fmt.Errorf("read GeoLat: %w", err)
	}
	if n.GeoLon, err = readSlice[float64](r, pts); err != nil {
		return nil, fmt.Errorf("read GeoLon: %w", err)
	}
	if n.GeoNodeID, err = readSlice[int64](r, pts); err != nil {
		return nil, fmt.Errorf("read GeoNodeID: %w", err)
	}
	if n.TripFirstOut, err = readSlice[uint32](r, int(hdr.NumTrips)+1); err != nil {
		return nil, fmt.Errorf("read TripFirstOut: %w", err)
	}
	if n.TripEdges, err = readSlice[uint64](r, int(hdr.NumTripEdges)); err != nil {
		return nil, fmt.Errorf("read TripEdges: %w", err)
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if err := validateOffsets(n.GeoFirstOut, uint32(pts)); err != nil {
		return nil, fmt.Errorf("geometry offsets invalid: %w", err)
	}
	if err := validateOffsets(n.TripFirstOut, hdr.NumTripEdges); err != nil {
		return nil, fmt.Errorf("trip offsets invalid: %w", err)
	}
	for i, k := range n.TripEdges {
		if k>>1 >= uint64(n.NumSegments) {
			return nil, fmt.Errorf("TripEdges[%d]=%d references segment beyond %d", i, k, n.NumSegments)
		}
	}

	return n, nil
}

// validateOffsets checks that firstOut starts at 0, never decreases and ends
// at total.
func validateOffsets(firstOut []uint32, total uint32) error {
	if firstOut[0] != 0 {
		return fmt.Errorf("first offset %d != 0", firstOut[0])
	}
	for i := 1; i < len(firstOut); i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("offsets not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	if last := firstOut[len(firstOut)-1]; last != total {
		return fmt.Errorf("last offset %d != %d", last, total)
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice. The file is little-endian, as
// are the hosts this runs on.

type fixedSize interface {
	uint8 | uint32 | uint64 | int64 | float64
}

func writeSlice[T fixedSize](w io.Writer, s []T) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
	_, err := w.Write(b)
	return err
}

func readSlice[T fixedSize](r io.Reader, n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]T, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*int(unsafe.Sizeof(s[0])))
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
