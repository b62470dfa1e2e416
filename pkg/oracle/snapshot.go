package oracle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// snapshotMagic identifies a fact snapshot.
var snapshotMagic = []byte{'O', 'S', 'F', 'S'}

// WriteSnapshot writes facts in snapshot format:
//   - Magic (4 bytes): "OSFS"
//   - Version (4 bytes, little-endian)
//   - Facts as JSON, zstd compressed
func WriteSnapshot(w io.Writer, facts Facts) error {
	var header [8]byte
	copy(header[:4], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:], snapshotVersion)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(facts); err != nil {
		enc.Close()
		return fmt.Errorf("encode facts: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot reads facts written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (Facts, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Facts{}, fmt.Errorf("%w: read header: %v", ErrInvalidSnapshot, err)
	}
	if !bytes.Equal(header[:4], snapshotMagic) {
		return Facts{}, fmt.Errorf("%w: bad magic %q", ErrInvalidSnapshot, header[:4])
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != snapshotVersion {
		return Facts{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, v)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return Facts{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	defer dec.Close()

	var facts Facts
	if err := json.NewDecoder(dec).Decode(&facts); err != nil {
		return Facts{}, fmt.Errorf("%w: decode facts: %v", ErrInvalidSnapshot, err)
	}
	if err := facts.Validate(); err != nil {
		return Facts{}, err
	}
	return facts, nil
}

// SaveSnapshot writes a snapshot file, creating its directory.
func SaveSnapshot(path string, facts Facts) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := WriteSnapshot(w, facts); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Sync()
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (Facts, error) {
	file, err := os.Open(path)
	if err != nil {
		return Facts{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()
	return ReadSnapshot(bufio.NewReader(file))
}
