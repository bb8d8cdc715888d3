package xl

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

// A minimal valid 1x1 transparent PNG.
const tinyPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="

func TestImageDimensionsPNG(t *testing.T) {
	blob, err := base64.StdEncoding.DecodeString(tinyPNGBase64)
	require.NoError(t, err)
	format, dim, ok := ImageDimensions(blob)
	require.True(t, ok)
	require.Equal(t, "png", format)
	require.Equal(t, 1, dim.Width)
	require.Equal(t, 1, dim.Height)
}

func TestImageDimensionsUnrecognized(t *testing.T) {
	_, _, ok := ImageDimensions([]byte("not an image"))
	require.False(t, ok)
}

func TestImageDimensionsWebPLossy(t *testing.T) {
	// VP8 (lossy) chunk: 14-byte RIFF header, "VP8 " fourCC, then a
	// minimal frame tag header carrying width/height at offset 26.
	blob := make([]byte, 30)
	copy(blob[0:4], "RIFF")
	copy(blob[8:12], "WEBP")
	copy(blob[12:16], "VP8 ")
	// width=100 (14 bits), height=50 (14 bits), little-endian packed.
	blob[26] = byte(100 & 0xFF)
	blob[27] = byte(100 >> 8)
	blob[28] = byte(50 & 0xFF)
	blob[29] = byte(50 >> 8)
	format, dim, ok := ImageDimensions(blob)
	require.True(t, ok)
	require.Equal(t, "webp", format)
	require.Equal(t, 100, dim.Width)
	require.Equal(t, 50, dim.Height)
}

func TestPixelsToEMU(t *testing.T) {
	// 96 DPI, 914400 EMU/inch -> 9525 EMU/pixel.
	require.Equal(t, int64(9525), PixelsToEMU(1))
	require.Equal(t, int64(952500), PixelsToEMU(100))
}

func TestBlobHashStable(t *testing.T) {
	blob := []byte("hello world")
	require.Equal(t, BlobHash(blob), BlobHash(append([]byte(nil), blob...)))
	require.NotEqual(t, BlobHash(blob), BlobHash([]byte("hello worlD")))
}

func TestIDGeneratorDeterministic(t *testing.T) {
	g := &IDGenerator{Deterministic: true}
	a := g.Next()
	b := g.Next()
	require.NotEqual(t, a, b)

	g2 := &IDGenerator{Deterministic: true}
	a2 := g2.Next()
	require.Equal(t, a, a2, "deterministic generator must reproduce the same sequence")
}
