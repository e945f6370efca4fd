package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileName is the snapshot file written inside the index directory.
const FileName = "vectors.bin"

// Snapshot format (all integers little-endian uint32):
//
//	magic "SDVX", version, dimension, count,
//	then per entry: idLen, id bytes, dimension float32 values.
//
// Vectors are held as float64 in memory and narrowed to float32 on write, so a
// round trip is exact only to float32 precision. Insert rejects components that
// do not fit a finite float32, and Load rejects snapshots holding NaN or Inf.
const (
	snapshotMagic   = "SDVX"
	snapshotVersion = 1
)

// Save writes the full index to dir/vectors.bin, creating dir if needed.
// The file is written to a temporary name and renamed into place.
func (m *MemoryIndex) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := m.writeSnapshot(w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, FileName)); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	if m.logger != nil {
		m.logger.Debug("vector index saved", zap.String("dir", dir), zap.Int("size", len(m.vectors)), zap.Int("dimension", m.dimension))
	}
	return nil
}

func (m *MemoryIndex) writeSnapshot(w io.Writer) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	header := []uint32{snapshotVersion, uint32(m.dimension), uint32(len(m.vectors))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	buf := make([]byte, m.dimension*4)
	for _, id := range m.sortedIDs() {
		idBytes := []byte(id)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := w.Write(idBytes); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		putFloat32s(buf, m.vectors[id])
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the index contents with the snapshot in dir. A missing directory or
// snapshot leaves the index empty with no dimension. A malformed snapshot returns an
// error and leaves the index unchanged.
func (m *MemoryIndex) Load(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.dimension = 0
			m.vectors = make(map[string][]float64)
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	dim, vectors, err := readSnapshot(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("load %s: %w", filepath.Join(dir, FileName), err)
	}
	m.dimension = dim
	m.vectors = vectors
	if m.logger != nil {
		m.logger.Debug("vector index loaded", zap.String("dir", dir), zap.Int("size", len(vectors)), zap.Int("dimension", dim))
	}
	return nil
}

func readSnapshot(r *bytes.Reader) (int, map[string][]float64, error) {
	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return 0, nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return 0, nil, fmt.Errorf("bad magic %q", magic)
	}
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}
	version, dim, n := header[0], int(header[1]), header[2]
	if version != snapshotVersion {
		return 0, nil, fmt.Errorf("unsupported snapshot version %d", version)
	}
	if (dim == 0) != (n == 0) {
		return 0, nil, fmt.Errorf("inconsistent header: dimension %d with %d entries", dim, n)
	}
	// each entry needs at least an id length and its vector
	if int64(n)*int64(4+dim*4) > int64(r.Len()) {
		return 0, nil, fmt.Errorf("truncated snapshot: %d entries declared", n)
	}
	vectors := make(map[string][]float64, n)
	buf := make([]byte, dim*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return 0, nil, fmt.Errorf("read id len: %w", err)
		}
		if int64(idLen) > int64(r.Len()) {
			return 0, nil, fmt.Errorf("entry %d: id length %d exceeds data", i, idLen)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return 0, nil, fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, nil, fmt.Errorf("read vector: %w", err)
		}
		vec := getFloat32s(buf)
		for j, x := range vec {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return 0, nil, fmt.Errorf("entry %d: component %d is %v", i, j, x)
			}
		}
		vectors[string(idBytes)] = vec
	}
	if r.Len() != 0 {
		return 0, nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return dim, vectors, nil
}

func putFloat32s(dst []byte, v []float64) {
	for i, x := range v {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(x)))
	}
}

func getFloat32s(b []byte) []float64 {
	out := make([]float64, len(b)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
	}
	return out
}
