package asyncresult

import (
	"encoding/binary"
	"fmt"

	"elliptics-go/pkg/dckey"
)

// EncodeFileInfo lays out a lookup reply payload as
// tsec || tnsec || size || checksum || path, matching
// FileInfoStructSize for the fixed-width prefix.
func EncodeFileInfo(info FileInfo) []byte {
	out := make([]byte, FileInfoStructSize+len(info.Path))
	binary.BigEndian.PutUint64(out[0:8], info.Mtime.Tsec)
	binary.BigEndian.PutUint64(out[8:16], info.Mtime.Tnsec)
	binary.BigEndian.PutUint64(out[16:24], info.Size)
	copy(out[24:24+dckey.IDSize], info.Checksum[:])
	copy(out[FileInfoStructSize:], info.Path)
	return out
}

// DecodeFileInfo parses a payload produced by EncodeFileInfo. A
// payload shorter than FileInfoStructSize is rejected; a payload of
// exactly FileInfoStructSize (an empty path) is accepted.
func DecodeFileInfo(payload []byte) (FileInfo, error) {
	if len(payload) < FileInfoStructSize {
		return FileInfo{}, fmt.Errorf("asyncresult: lookup payload too short: %d < %d", len(payload), FileInfoStructSize)
	}
	var info FileInfo
	info.Mtime.Tsec = binary.BigEndian.Uint64(payload[0:8])
	info.Mtime.Tnsec = binary.BigEndian.Uint64(payload[8:16])
	info.Size = binary.BigEndian.Uint64(payload[16:24])
	copy(info.Checksum[:], payload[24:24+dckey.IDSize])
	info.Path = string(payload[FileInfoStructSize:])
	return info, nil
}
