package psb

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"
)

const (
	headerLenV2 = 40
	headerLenV3 = 44
	headerLenV4 = 56

	// Checksummed header span: header length and the seven section offsets.
	checksumStart = 8
	checksumEnd   = 40
)

// Header is the fixed preamble of a PSB file. Offsets are absolute.
type Header struct {
	Version      uint16
	Encrypt      uint16
	HeaderLength uint32

	OffsetNames        uint32
	OffsetStrings      uint32
	OffsetStringsData  uint32
	OffsetChunkOffsets uint32
	OffsetChunkLengths uint32
	OffsetChunkData    uint32
	OffsetEntries      uint32

	// Version 3 and later.
	Checksum uint32

	// Version 4 only.
	OffsetExtraChunkOffsets uint32
	OffsetExtraChunkLengths uint32
	OffsetExtraChunkData    uint32
}

// HeaderLength returns the encoded header size for version.
func HeaderLength(version uint16) (uint32, bool) {
	switch version {
	case 2:
		return headerLenV2, true
	case 3:
		return headerLenV3, true
	case 4:
		return headerLenV4, true
	default:
		return 0, false
	}
}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < 8 {
		return Header{}, fmt.Errorf("%w: truncated header", ErrFormat)
	}
	if string(b[:4]) != Signature {
		return Header{}, fmt.Errorf("%w: bad signature %q", ErrFormat, b[:4])
	}
	le := binary.LittleEndian
	var h Header
	h.Version = le.Uint16(b[4:])
	h.Encrypt = le.Uint16(b[6:])
	size, ok := HeaderLength(h.Version)
	if !ok {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, h.Version)
	}
	if h.Encrypt != 0 {
		return Header{}, fmt.Errorf("%w: encrypted header", ErrFormat)
	}
	if len(b) < int(size) {
		return Header{}, fmt.Errorf("%w: truncated header", ErrFormat)
	}

	h.HeaderLength = le.Uint32(b[8:])
	h.OffsetNames = le.Uint32(b[12:])
	h.OffsetStrings = le.Uint32(b[16:])
	h.OffsetStringsData = le.Uint32(b[20:])
	h.OffsetChunkOffsets = le.Uint32(b[24:])
	h.OffsetChunkLengths = le.Uint32(b[28:])
	h.OffsetChunkData = le.Uint32(b[32:])
	h.OffsetEntries = le.Uint32(b[36:])
	if h.Version >= 3 {
		h.Checksum = le.Uint32(b[40:])
	}
	if h.Version >= 4 {
		h.OffsetExtraChunkOffsets = le.Uint32(b[44:])
		h.OffsetExtraChunkLengths = le.Uint32(b[48:])
		h.OffsetExtraChunkData = le.Uint32(b[52:])
	}
	return h, nil
}

// encodeHeader writes h into dst, which must hold the full header for
// h.Version. The checksum is computed, not copied from h.
func encodeHeader(dst []byte, h Header) bool {
	size, ok := HeaderLength(h.Version)
	if !ok || len(dst) < int(size) {
		return false
	}
	le := binary.LittleEndian
	copy(dst[:4], Signature)
	le.PutUint16(dst[4:], h.Version)
	le.PutUint16(dst[6:], h.Encrypt)
	le.PutUint32(dst[8:], h.HeaderLength)
	le.PutUint32(dst[12:], h.OffsetNames)
	le.PutUint32(dst[16:], h.OffsetStrings)
	le.PutUint32(dst[20:], h.OffsetStringsData)
	le.PutUint32(dst[24:], h.OffsetChunkOffsets)
	le.PutUint32(dst[28:], h.OffsetChunkLengths)
	le.PutUint32(dst[32:], h.OffsetChunkData)
	le.PutUint32(dst[36:], h.OffsetEntries)
	if h.Version >= 3 {
		le.PutUint32(dst[40:], headerChecksum(dst))
	}
	if h.Version >= 4 {
		le.PutUint32(dst[44:], h.OffsetExtraChunkOffsets)
		le.PutUint32(dst[48:], h.OffsetExtraChunkLengths)
		le.PutUint32(dst[52:], h.OffsetExtraChunkData)
	}
	return true
}

func headerChecksum(b []byte) uint32 {
	return adler32.Checksum(b[checksumStart:checksumEnd])
}

// validate checks that every section offset lies inside a file of size n.
func (h *Header) validate(n int) error {
	if int64(h.HeaderLength) > int64(n) {
		return fmt.Errorf("%w: header length %d exceeds file size %d", ErrFormat, h.HeaderLength, n)
	}
	offsets := []struct {
		name string
		off  uint32
	}{
		{"names", h.OffsetNames},
		{"strings", h.OffsetStrings},
		{"strings data", h.OffsetStringsData},
		{"chunk offsets", h.OffsetChunkOffsets},
		{"chunk lengths", h.OffsetChunkLengths},
		{"chunk data", h.OffsetChunkData},
		{"entries", h.OffsetEntries},
	}
	for _, o := range offsets {
		if int64(o.off) > int64(n) {
			return fmt.Errorf("%w: %s offset %d out of bounds", ErrFormat, o.name, o.off)
		}
	}
	return nil
}
