package graphics

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"io"
)

// maxArchiveEntry caps the size of one decompressed zip entry or zlib stream.
const maxArchiveEntry = 256 << 20

func isZlib(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	// CMF/FLG: deflate with window <= 32K and a header checksum divisible by 31.
	return buf[0]&0x0f == 8 && buf[0]>>4 <= 7 && (uint16(buf[0])<<8|uint16(buf[1]))%31 == 0
}

// decodeZIP decodes the first entry of a zip archive that holds a supported image.
func decodeZIP(data []byte, depth int) (*Image, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, decodef("zip: %v", err)
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		entry, err := io.ReadAll(io.LimitReader(rc, maxArchiveEntry))
		rc.Close()
		if err != nil {
			continue
		}
		if img, err := decodeImage(entry, depth+1); err == nil {
			return img, nil
		}
	}
	return nil, decodef("zip: no entry holds a supported image")
}

// decodeZlib inflates a raw zlib stream and decodes its content.
func decodeZlib(data []byte, depth int) (*Image, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, decodef("zlib: %v", err)
	}
	defer r.Close()
	inner, err := io.ReadAll(io.LimitReader(r, maxArchiveEntry))
	if err != nil {
		return nil, decodef("zlib: %v", err)
	}
	return decodeImage(inner, depth+1)
}
