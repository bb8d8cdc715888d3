package render

import (
	"regexp"
	"strconv"

	"github.com/adnsv/go-xltmpl/xl"
	"github.com/google/uuid"
)

// mediaPool dedups image blobs across the whole render (not just within one
// sheet, since two sheets can legitimately `img` the same picture) by
// content hash, and mints fresh, collision-free `xl/media/imageN.ext` part
// names by scanning whatever media parts the template already shipped with.
type mediaPool struct {
	pkg       *xl.Package
	byHash    map[uuid.UUID]string // blob hash -> part path, already written or about to be
	nextIndex int
}

var mediaIndexRe = regexp.MustCompile(`^xl/media/image([0-9]+)\.`)

func newMediaPool(pkg *xl.Package) *mediaPool {
	mp := &mediaPool{pkg: pkg, byHash: map[uuid.UUID]string{}, nextIndex: 1}
	for path := range pkg.Parts {
		if m := mediaIndexRe.FindStringSubmatch(path); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= mp.nextIndex {
				mp.nextIndex = n + 1
			}
		}
	}
	return mp
}

// register returns the part path to embed for blob, writing a new
// xl/media/imageN.ext part (and a [Content_Types].xml Default entry for its
// extension) the first time this exact blob is seen.
func (mp *mediaPool) register(blob []byte, format string, ct *xl.ContentTypes) string {
	hash := xl.BlobHash(blob)
	if path, ok := mp.byHash[hash]; ok {
		return path
	}
	ext := extensionFor(format)
	path := "xl/media/image" + strconv.Itoa(mp.nextIndex) + "." + ext
	mp.nextIndex++
	mp.pkg.Set(path, blob)
	mp.byHash[hash] = path
	ct.AddDefault(ext, contentTypeFor(format))
	return path
}

func extensionFor(format string) string {
	switch format {
	case "jpeg":
		return "jpeg"
	default:
		return format
	}
}

func contentTypeFor(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
