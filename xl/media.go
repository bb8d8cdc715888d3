package xl

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// EMUPerPixel is the DrawingML coordinate conversion factor: 914,400 EMU
// per inch at 96 DPI.
const EMUPerPixel = 914400 / 96

// PixelsToEMU converts a pixel dimension to English Metric Units.
func PixelsToEMU(px float64) int64 {
	return int64(px*EMUPerPixel + 0.5)
}

// Dimensions is the decoded pixel size of an image.
type Dimensions struct {
	Width, Height int
}

// ImageDimensions sniffs an image's format by magic bytes and returns its
// declared pixel dimensions. It never fully decodes pixel data — only the
// header each format stores its dimensions in.
func ImageDimensions(blob []byte) (format string, dim Dimensions, ok bool) {
	switch {
	case len(blob) >= 8 && bytes.Equal(blob[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(blob)); err == nil {
			return "png", Dimensions{cfg.Width, cfg.Height}, true
		}
	case len(blob) >= 3 && blob[0] == 0xFF && blob[1] == 0xD8 && blob[2] == 0xFF:
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(blob)); err == nil {
			return "jpeg", Dimensions{cfg.Width, cfg.Height}, true
		}
	case len(blob) >= 6 && (bytes.Equal(blob[:6], []byte("GIF87a")) || bytes.Equal(blob[:6], []byte("GIF89a"))):
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(blob)); err == nil {
			return "gif", Dimensions{cfg.Width, cfg.Height}, true
		}
	case len(blob) >= 2 && blob[0] == 'B' && blob[1] == 'M':
		if cfg, err := bmp.DecodeConfig(bytes.NewReader(blob)); err == nil {
			return "bmp", Dimensions{cfg.Width, cfg.Height}, true
		}
	case len(blob) >= 4 && (bytes.Equal(blob[:4], []byte("II*\x00")) || bytes.Equal(blob[:4], []byte("MM\x00*"))):
		if cfg, err := tiff.DecodeConfig(bytes.NewReader(blob)); err == nil {
			return "tiff", Dimensions{cfg.Width, cfg.Height}, true
		}
	case len(blob) >= 12 && bytes.Equal(blob[:4], []byte("RIFF")) && bytes.Equal(blob[8:12], []byte("WEBP")):
		if dim, ok := webpDimensions(blob); ok {
			return "webp", dim, true
		}
	}
	return "", Dimensions{}, false
}

// webpDimensions parses the VP8/VP8L/VP8X chunk header for pixel
// dimensions. A dimensions-only sniff has no business running a full WebP
// decode, so this reads the chunk headers directly like the rest of
// ImageDimensions.
func webpDimensions(blob []byte) (Dimensions, bool) {
	if len(blob) < 30 {
		return Dimensions{}, false
	}
	chunk := string(blob[12:16])
	switch chunk {
	case "VP8X":
		// width-1/height-1 as 24-bit little-endian, at offset 24/27.
		w := int(blob[24]) | int(blob[25])<<8 | int(blob[26])<<16
		h := int(blob[27]) | int(blob[28])<<8 | int(blob[29])<<16
		return Dimensions{w + 1, h + 1}, true
	case "VP8 ":
		if len(blob) < 30 {
			return Dimensions{}, false
		}
		w := int(binary.LittleEndian.Uint16(blob[26:28])) & 0x3FFF
		h := int(binary.LittleEndian.Uint16(blob[28:30])) & 0x3FFF
		return Dimensions{w, h}, true
	case "VP8L":
		if len(blob) < 25 {
			return Dimensions{}, false
		}
		b := blob[21:25]
		v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		w := int(v&0x3FFF) + 1
		h := int((v>>14)&0x3FFF) + 1
		return Dimensions{w, h}, true
	}
	return Dimensions{}, false
}

// BlobHash derives a stable UUID from image bytes, used to name and
// deduplicate media parts when the same image bytes are inserted more than
// once.
func BlobHash(blob []byte) uuid.UUID {
	h := fnv.New128()
	h.Write(blob)
	uid, _ := uuid.FromBytes(h.Sum(nil))
	return uid
}

// IDGenerator mints the fresh UUIDs used for drawing relationship ids. In
// normal operation it draws from uuid.NewRandom; with Deterministic set it
// instead derives a reproducible UUID from a monotonic counter, for test
// output that must not change between runs.
type IDGenerator struct {
	Deterministic bool
	counter       int
}

var deterministicNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func (g *IDGenerator) Next() string {
	if g.Deterministic {
		g.counter++
		seed := []byte{byte(g.counter >> 24), byte(g.counter >> 16), byte(g.counter >> 8), byte(g.counter)}
		return uuid.NewSHA1(deterministicNamespace, seed).String()
	}
	id, err := uuid.NewRandom()
	if err != nil {
		// uuid.NewRandom only fails if the system RNG is broken; fall back
		// to a deterministic id rather than panicking mid-render.
		g.counter++
		return uuid.NewMD5(deterministicNamespace, []byte{byte(g.counter)}).String()
	}
	return id.String()
}
