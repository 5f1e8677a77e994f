package testutil

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// EXIF tag IDs accepted by JPEGWithEXIF.
var exifTags = map[string]uint16{
	"DateTime":          0x0132,
	"DateTimeOriginal":  0x9003,
	"DateTimeDigitized": 0x9004,
}

// JPEGWithEXIF returns a minimal JPEG whose APP1 segment carries the given
// ASCII fields (e.g. "DateTimeOriginal": "2020:01:05 14:00:00") in an Exif
// sub-IFD. body is appended before the end-of-image marker so fixtures with
// equal dates can still differ in content.
func JPEGWithEXIF(fields map[string]string, body []byte) []byte {
	type field struct {
		tag   uint16
		value string
	}
	var fs []field
	for name, v := range fields {
		tag, ok := exifTags[name]
		if !ok {
			panic("testutil: unsupported EXIF field " + name)
		}
		fs = append(fs, field{tag, v})
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i].tag < fs[j].tag })

	le := binary.LittleEndian
	var tiff bytes.Buffer

	// Header and IFD0 with a single Exif IFD pointer.
	const exifIFD = 8 + 2 + 12 + 4
	tiff.WriteString("II")
	binary.Write(&tiff, le, uint16(42))
	binary.Write(&tiff, le, uint32(8))
	binary.Write(&tiff, le, uint16(1))
	binary.Write(&tiff, le, uint16(0x8769))
	binary.Write(&tiff, le, uint16(4)) // LONG
	binary.Write(&tiff, le, uint32(1))
	binary.Write(&tiff, le, uint32(exifIFD))
	binary.Write(&tiff, le, uint32(0))

	// Exif IFD, values stored after the entry table.
	dataOffset := exifIFD + 2 + 12*len(fs) + 4
	var data bytes.Buffer
	binary.Write(&tiff, le, uint16(len(fs)))
	for _, f := range fs {
		value := append([]byte(f.value), 0)
		binary.Write(&tiff, le, f.tag)
		binary.Write(&tiff, le, uint16(2)) // ASCII
		binary.Write(&tiff, le, uint32(len(value)))
		if len(value) <= 4 {
			var inline [4]byte
			copy(inline[:], value)
			tiff.Write(inline[:])
			continue
		}
		binary.Write(&tiff, le, uint32(dataOffset+data.Len()))
		data.Write(value)
	}
	binary.Write(&tiff, le, uint32(0))
	tiff.Write(data.Bytes())

	var jpg bytes.Buffer
	jpg.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&jpg, binary.BigEndian, uint16(2+6+tiff.Len()))
	jpg.WriteString("Exif\x00\x00")
	jpg.Write(tiff.Bytes())
	jpg.Write(body)
	jpg.Write([]byte{0xFF, 0xD9})
	return jpg.Bytes()
}

// PlainJPEG returns JPEG-framed bytes without any metadata segment.
func PlainJPEG(body []byte) []byte {
	jpg := []byte{0xFF, 0xD8}
	jpg = append(jpg, body...)
	return append(jpg, 0xFF, 0xD9)
}
