package blobformat

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the optional body compression a blob was written
// with.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionDeflate
	CompressionLZ4
)

const (
	magic          = "SVB1"
	currentVersion = uint8(1)
	headerLen      = 4 + 1 + 1 + 4 // magic + version + compression + body length
)

// Write serializes v as a ChecksumBlobFormat blob.
func Write[T any](v T, compression Compression) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.Fatal, "blobformat_write", err)
	}

	compressed, err := compress(body, compression)
	if err != nil {
		return nil, repoerr.Wrap(repoerr.Fatal, "blobformat_write", err)
	}

	buf := make([]byte, 0, headerLen+len(compressed)+4)
	buf = append(buf, magic...)
	buf = append(buf, currentVersion, byte(compression))
	var lenField [4]byte
	binary.BigEndian.PutUint32(lenField[:], uint32(len(compressed)))
	buf = append(buf, lenField[:]...)
	buf = append(buf, compressed...)

	checksum := crc32.ChecksumIEEE(buf)
	var crcField [4]byte
	binary.BigEndian.PutUint32(crcField[:], checksum)
	buf = append(buf, crcField[:]...)

	return buf, nil
}

// Read parses and verifies a ChecksumBlobFormat blob written by Write.
func Read[T any](data []byte) (T, error) {
	var zero T

	if len(data) < headerLen+4 {
		return zero, repoerr.New(repoerr.CorruptBlob, "blobformat_read", fmt.Errorf("blob too short: %d bytes", len(data)))
	}

	body := data[:len(data)-4]
	wantCRC := binary.BigEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return zero, repoerr.New(repoerr.CorruptBlob, "blobformat_read", fmt.Errorf("checksum mismatch"))
	}

	if string(body[:4]) != magic {
		return zero, repoerr.New(repoerr.FormatMismatch, "blobformat_read", fmt.Errorf("bad magic header %q", body[:4]))
	}
	version := body[4]
	if version > currentVersion {
		return zero, repoerr.New(repoerr.FormatMismatch, "blobformat_read",
			fmt.Errorf("format version %d is newer than supported %d", version, currentVersion))
	}
	compression := Compression(body[5])
	bodyLen := binary.BigEndian.Uint32(body[6:10])
	if int(bodyLen) != len(body)-headerLen {
		return zero, repoerr.New(repoerr.CorruptBlob, "blobformat_read",
			fmt.Errorf("declared body length %d does not match actual %d", bodyLen, len(body)-headerLen))
	}

	raw, err := decompress(body[headerLen:], compression)
	if err != nil {
		return zero, repoerr.Wrap(repoerr.CorruptBlob, "blobformat_read", err)
	}

	if err := json.Unmarshal(raw, &zero); err != nil {
		return zero, repoerr.Wrap(repoerr.CorruptBlob, "blobformat_read", err)
	}
	return zero, nil
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression type %d", c)
	}
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionDeflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		return io.ReadAll(r)
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unknown compression type %d", c)
	}
}
