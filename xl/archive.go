package xl

import (
	"archive/zip"
	"bytes"
	"io"
	"sort"
	"strings"
)

// minPackageSize rejects obviously truncated input before even attempting
// to open it as a ZIP archive.
const minPackageSize = 22 // the smallest possible empty ZIP end-of-central-directory record

// zipMagic is the local-file-header signature every well-formed ZIP (and
// therefore every OOXML package) must begin with.
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// Package is an in-memory, mutable view of an OOXML ZIP package: every
// part's bytes keyed by its archive path, plus the original entry order so
// untouched parts are re-emitted in the same position.
type Package struct {
	Parts map[string][]byte
	order []string
}

// ReadPackage validates and unpacks an XLSX byte stream into a Package.
// Validation checks the minimum size, the ZIP local-file-header magic, and
// the presence of [Content_Types].xml and at least one worksheet part.
func ReadPackage(data []byte) (*Package, error) {
	if len(data) < minPackageSize {
		return nil, Errorf(KindInvalidZip, "input too small (%d bytes) to be a valid package", len(data))
	}
	if !bytes.Equal(data[:4], zipMagic) {
		return nil, Errorf(KindInvalidZip, "missing ZIP local-file-header magic")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, Wrapf(KindInvalidZip, err, "malformed ZIP central directory")
	}

	pkg := &Package{Parts: map[string][]byte{}}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, Wrapf(KindInvalidZip, err, "opening part %q", f.Name)
		}
		blob, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, Wrapf(KindInvalidZip, err, "reading part %q", f.Name)
		}
		path := normalizePath(f.Name)
		pkg.Parts[path] = blob
		pkg.order = append(pkg.order, path)
	}

	if _, ok := pkg.FindPart(IsContentTypesPart); !ok {
		return nil, Errorf(KindInvalidXLSX, "missing [Content_Types].xml")
	}
	if len(pkg.WorksheetParts()) == 0 {
		return nil, Errorf(KindInvalidXLSX, "no worksheet part found")
	}
	return pkg, nil
}

func normalizePath(p string) string {
	return strings.TrimPrefix(p, "/")
}

// Get returns a part's bytes and whether it exists.
func (p *Package) Get(path string) ([]byte, bool) {
	b, ok := p.Parts[normalizePath(path)]
	return b, ok
}

// Set creates or overwrites a part. New paths are appended to the write
// order; existing paths keep their original position.
func (p *Package) Set(path string, data []byte) {
	path = normalizePath(path)
	if _, exists := p.Parts[path]; !exists {
		p.order = append(p.order, path)
	}
	p.Parts[path] = data
}

// Delete removes a part entirely.
func (p *Package) Delete(path string) {
	path = normalizePath(path)
	delete(p.Parts, path)
	for i, o := range p.order {
		if o == path {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// FindPart returns the first part path (in original entry order) matching
// the given classifier predicate, e.g. FindPart(IsWorkbookPart).
func (p *Package) FindPart(pred func(string) bool) (string, bool) {
	for _, path := range p.order {
		if _, alive := p.Parts[path]; alive && pred(path) {
			return path, true
		}
	}
	return "", false
}

// WorksheetParts returns every `xl/worksheets/sheetN.xml`-style part path,
// in sheet-number order (sheet2 before sheet10).
func (p *Package) WorksheetParts() []string {
	var out []string
	for path := range p.Parts {
		if IsWorksheetPart(path) {
			out = append(out, path)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := SheetIndexFromPart(out[i])
		b, _ := SheetIndexFromPart(out[j])
		return a < b
	})
	return out
}

// Write serializes the package back to a ZIP archive byte slice, in the
// original entry order with any newly added parts appended at the end.
// Every part this render didn't touch is copied through unmodified.
func (p *Package) Write() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, path := range p.order {
		blob, ok := p.Parts[path]
		if !ok {
			continue
		}
		w, err := zw.Create(path)
		if err != nil {
			return nil, Wrapf(KindInternal, err, "creating zip entry %q", path)
		}
		if _, err := w.Write(blob); err != nil {
			return nil, Wrapf(KindInternal, err, "writing zip entry %q", path)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, Wrapf(KindInternal, err, "finalizing zip archive")
	}
	return buf.Bytes(), nil
}
