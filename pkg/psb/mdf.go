package psb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// MagicMDF prefixes a zlib-compressed PSB: "mdf\0", the uncompressed
// length as u32 little-endian, then the zlib stream.
const MagicMDF = "mdf\x00"

const mdfHeaderSize = 8

// IsMDF reports whether data carries the MDF wrapper.
func IsMDF(data []byte) bool {
	return len(data) >= mdfHeaderSize && string(data[:4]) == MagicMDF
}

// CompressMDF wraps a PSB payload. level follows compress/flate; 0 picks
// the default.
func CompressMDF(psb []byte, level int) ([]byte, error) {
	if uint64(len(psb)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: payload of %d bytes too large for mdf", ErrFormat, len(psb))
	}
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	buf.WriteString(MagicMDF)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(psb)))

	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("mdf: %w", err)
	}
	if _, err := zw.Write(psb); err != nil {
		return nil, fmt.Errorf("mdf: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("mdf: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressMDF unwraps an MDF payload and checks its recorded length.
func DecompressMDF(data []byte) ([]byte, error) {
	return DecompressMDFLimit(data, 0)
}

// DecompressMDFLimit is DecompressMDF but rejects payloads that record
// more than limit bytes before inflating anything. A limit of zero or
// less accepts any size.
func DecompressMDFLimit(data []byte, limit int64) ([]byte, error) {
	if !IsMDF(data) {
		return nil, fmt.Errorf("%w: missing mdf signature", ErrFormat)
	}
	size := binary.LittleEndian.Uint32(data[4:8])
	if limit > 0 && int64(size) > limit {
		return nil, fmt.Errorf("%w: mdf holds %d bytes, limit is %d", ErrFormat, size, limit)
	}
	zr, err := zlib.NewReader(bytes.NewReader(data[mdfHeaderSize:]))
	if err != nil {
		return nil, fmt.Errorf("%w: mdf: %v", ErrFormat, err)
	}
	defer func() { _ = zr.Close() }()

	out := make([]byte, 0, min(int(size), 1<<26))
	buf := bytes.NewBuffer(out)
	// Read one byte past the recorded size to detect oversized streams.
	if _, err := io.Copy(buf, io.LimitReader(zr, int64(size)+1)); err != nil {
		return nil, fmt.Errorf("%w: mdf: %v", ErrFormat, err)
	}
	if buf.Len() != int(size) {
		return nil, fmt.Errorf("%w: mdf holds %d bytes, header says %d", ErrFormat, buf.Len(), size)
	}
	return buf.Bytes(), nil
}
