package accumulator

import (
	"fmt"
	"os"
)

// hashBytes is the fixed on-disk width of a populated node: 1 tag byte plus
// 32 payload bytes for kindValue, padded to the same width for kindEmpty/
// kindPlaceholder so every slot in a ForestData backend is the same size
// and addressable by simple multiplication, the same layout the teacher's
// ramForestData/diskForestData use.
const hashBytes = 33

// ForestData is the storage backend behind a Forest: a flat, directly
// addressed array of node slots, kept or grown one row at a time. Swapping
// implementations (RAM vs disk) changes nothing about the algorithms in
// forest.go.
type ForestData interface {
	// Read returns the hash stored at pos.
	Read(pos uint64) Hash
	// Write stores h at pos, growing the backend if necessary.
	Write(pos uint64, h Hash)
	// Size reports how many slots are currently allocated.
	Size() uint64
	// Resize grows or shrinks the backend to hold newSize slots.
	Resize(newSize uint64)
	// Close releases any underlying resources (files, mmaps).
	Close() error
}

// RAMForestData keeps every slot in memory, one Hash per position. This is
// the default backend and the one the forest's own tests use.
type RAMForestData struct {
	data []Hash
}

// NewRAMForestData returns an empty in-memory backend.
func NewRAMForestData() *RAMForestData {
	return &RAMForestData{}
}

func (r *RAMForestData) Read(pos uint64) Hash {
	if pos >= uint64(len(r.data)) {
		return EmptyHash()
	}
	return r.data[pos]
}

func (r *RAMForestData) Write(pos uint64, h Hash) {
	if pos >= uint64(len(r.data)) {
		r.Resize(pos + 1)
	}
	r.data[pos] = h
}

func (r *RAMForestData) Size() uint64 { return uint64(len(r.data)) }

func (r *RAMForestData) Resize(newSize uint64) {
	if newSize <= uint64(len(r.data)) {
		r.data = r.data[:newSize]
		return
	}
	grown := make([]Hash, newSize)
	copy(grown, r.data)
	for i := len(r.data); i < len(grown); i++ {
		grown[i] = EmptyHash()
	}
	r.data = grown
}

func (r *RAMForestData) Close() error { return nil }

// DiskForestData backs a forest with a single flat file, used for forests
// too large to keep resident. Slot i lives at byte offset i*hashBytes,
// matching the teacher's diskForestData layout.
type DiskForestData struct {
	file *os.File
	size uint64
}

// NewDiskForestData opens (creating if absent) path as a disk-backed
// forest store.
func NewDiskForestData(path string) (*DiskForestData, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open forest file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat forest file %s: %w", path, err)
	}
	return &DiskForestData{file: f, size: uint64(info.Size()) / hashBytes}, nil
}

func (d *DiskForestData) Read(pos uint64) Hash {
	if pos >= d.size {
		return EmptyHash()
	}
	buf := make([]byte, hashBytes)
	if _, err := d.file.ReadAt(buf, int64(pos)*hashBytes); err != nil {
		return EmptyHash()
	}
	h, _, err := DeserializeHash(buf)
	if err != nil {
		return EmptyHash()
	}
	return h
}

func (d *DiskForestData) Write(pos uint64, h Hash) {
	if pos >= d.size {
		d.Resize(pos + 1)
	}
	buf := make([]byte, hashBytes)
	copy(buf, h.Serialize())
	d.file.WriteAt(buf, int64(pos)*hashBytes)
}

func (d *DiskForestData) Size() uint64 { return d.size }

func (d *DiskForestData) Resize(newSize uint64) {
	if err := d.file.Truncate(int64(newSize) * hashBytes); err != nil {
		return
	}
	d.size = newSize
}

func (d *DiskForestData) Close() error { return d.file.Close() }
