/*
Package blobformat implements ChecksumBlobFormat (spec.md §4.2): a typed,
checksummed, optionally compressed wire format for the metadata blobs the
repository engine writes — per-shard manifests, snapshot and index
metadata. The root repository manifests (index-N) are plain JSON and do
not use this format.

Wire layout, in order: a 4-byte magic header, a 1-byte format version, a
1-byte compression selector, a 4-byte big-endian body length, the
(optionally compressed) JSON body, and a trailing 4-byte CRC32 computed
over everything preceding it. Read verifies the checksum before touching
the header fields, then the magic and version, then decompresses and
unmarshals the body — any failure at any stage is a CorruptBlob or
FormatMismatch error, never a silent zero value.
*/
package blobformat
