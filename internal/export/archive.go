package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

// ChunkSize is the write size used when streaming an archive to a client.
const ChunkSize = 8 * 1024

// Archive builds a ZIP file in memory.
type Archive struct {
	buf   bytes.Buffer
	zw    *zip.Writer
	names map[string]int
	files int
}

func NewArchive() *Archive {
	a := &Archive{names: make(map[string]int)}
	a.zw = zip.NewWriter(&a.buf)
	return a
}

// Add copies r into the archive under name, a slash-separated relative path.
// Duplicate names get a " (n)" suffix before the extension.
func (a *Archive) Add(name string, modified time.Time, r io.Reader) error {
	entry := a.uniqueName(strings.TrimLeft(path.Clean("/"+name), "/"))
	header := &zip.FileHeader{Name: entry, Method: zip.Deflate}
	if !modified.IsZero() {
		header.Modified = modified
	}
	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", entry, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("write zip entry %s: %w", entry, err)
	}
	a.files++
	return nil
}

// Len reports how many files were added.
func (a *Archive) Len() int {
	return a.files
}

func (a *Archive) uniqueName(name string) string {
	n := a.names[name]
	a.names[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	candidate := strings.TrimSuffix(name, ext) + " (" + strconv.Itoa(n) + ")" + ext
	return a.uniqueName(candidate)
}

// Bytes finalizes the archive and returns its contents.
func (a *Archive) Bytes() ([]byte, error) {
	if err := a.zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return a.buf.Bytes(), nil
}

// WriteChunked writes data to w in ChunkSize pieces, flushing after each one
// when w supports it.
func WriteChunked(w io.Writer, data []byte) error {
	flusher, _ := w.(interface{ Flush() })
	for start := 0; start < len(data); start += ChunkSize {
		end := start + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[start:end]); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
