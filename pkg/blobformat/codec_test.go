package blobformat

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/cuemby/snapvault/pkg/repoerr"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Name  string
	Count int
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionDeflate, CompressionLZ4} {
		compression := compression
		t.Run(string(rune('0'+compression)), func(t *testing.T) {
			want := testPayload{Name: "snapshot-1", Count: 42}
			data, err := Write(want, compression)
			require.NoError(t, err)

			got, err := Read[testPayload](data)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestReadDetectsChecksumCorruption(t *testing.T) {
	data, err := Write(testPayload{Name: "x"}, CompressionNone)
	require.NoError(t, err)

	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err = Read[testPayload](corrupted)
	require.ErrorIs(t, err, repoerr.IsCorruptBlob)
}

func TestReadRejectsNewerFormatVersion(t *testing.T) {
	data, err := Write(testPayload{Name: "x"}, CompressionNone)
	require.NoError(t, err)

	tampered := append([]byte(nil), data...)
	tampered[4] = currentVersion + 1
	tampered = reCRC(tampered)

	_, err = Read[testPayload](tampered)
	require.ErrorIs(t, err, repoerr.IsFormatMismatch)
}

func TestReadRejectsTruncatedBlob(t *testing.T) {
	_, err := Read[testPayload]([]byte("short"))
	require.ErrorIs(t, err, repoerr.IsCorruptBlob)
}

func TestBlobNameFormat(t *testing.T) {
	name := BlobName("meta")
	require.Regexp(t, `^meta-[0-9a-f-]{36}\.dat$`, name)
}

func TestIndexBlobName(t *testing.T) {
	require.Equal(t, "index-7", IndexBlobName(7))
	require.Equal(t, "index--1", IndexBlobName(-1))
}

// reCRC recomputes the trailing checksum after a test has tampered with the
// body, so the failure under test is specifically the field being checked.
func reCRC(data []byte) []byte {
	body := data[:len(data)-4]
	sum := crc32.ChecksumIEEE(body)
	out := append([]byte(nil), body...)
	var crcField [4]byte
	binary.BigEndian.PutUint32(crcField[:], sum)
	return append(out, crcField[:]...)
}
