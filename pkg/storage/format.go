package storage

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Magic bytes to identify the snapshot file format
	MagicBytes = "GDLD"
	// Current version
	FormatVersion = 1
	// File extension for snapshot files
	FileExtension = ".gdld"
)

// Header flag bits
const (
	// FlagUncompressed marks a snapshot body stored as raw MessagePack.
	// Set when the payload is too small for lz4 to find any matches.
	FlagUncompressed uint8 = 1 << 0
)

// FileHeader represents the header of a snapshot file
type FileHeader struct {
	Magic    [4]byte // "GDLD"
	Version  uint8   // Format version
	Flags    uint8   // Flag bits
	Reserved [2]byte // Reserved for future use
}

// WriteHeader writes the file header to the given writer
func WriteHeader(w io.Writer, flags uint8) error {
	header := FileHeader{
		Magic:    [4]byte{'G', 'D', 'L', 'D'},
		Version:  FormatVersion,
		Flags:    flags,
		Reserved: [2]byte{0, 0},
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// ReadHeader reads and validates the file header
func ReadHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if string(header.Magic[:]) != MagicBytes {
		return nil, fmt.Errorf("invalid file format: expected %s, got %s", MagicBytes, string(header.Magic[:]))
	}

	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported file version: %d", header.Version)
	}

	return &header, nil
}

// snapshotData is the serialized form of the whole engine
type snapshotData struct {
	Stores map[string]storeData `msgpack:"stores"`
}

// storeData is the serialized form of one named store
type storeData struct {
	Collections map[string]collectionData `msgpack:"collections"`
}

// collectionData is the serialized form of one collection
type collectionData struct {
	Documents map[string]map[string]interface{} `msgpack:"documents"`
	Order     []string                          `msgpack:"order"`
	Validator map[string]interface{}            `msgpack:"validator,omitempty"`
	Indexes   []indexData                       `msgpack:"indexes,omitempty"`
}

// indexData is the serialized form of one index spec
type indexData struct {
	Name       string   `msgpack:"name"`
	Attributes []string `msgpack:"attributes"`
	Order      string   `msgpack:"order,omitempty"`
	Unique     bool     `msgpack:"unique,omitempty"`
}
