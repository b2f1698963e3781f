package imagefile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// BytesPerMB is the divisor used for every size comparison.
const BytesPerMB = 1024 * 1024

// ImageFile is an encoded image together with the metadata of the file it came from.
// Values are never mutated; operations always return a new ImageFile.
type ImageFile struct {
	Name         string
	MimeType     string
	Data         []byte
	LastModified time.Time
}

// New returns an ImageFile wrapping data.
func New(name, mimeType string, data []byte, lastModified time.Time) ImageFile {
	return ImageFile{
		Name:         name,
		MimeType:     mimeType,
		Data:         data,
		LastModified: lastModified,
	}
}

// Open reads the file at path. The mime type is sniffed from the content.
func Open(path string) (ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ImageFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return ImageFile{}, fmt.Errorf("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, fmt.Errorf("read %s: %w", path, err)
	}

	return New(filepath.Base(path), DetectMimeType(data), data, info.ModTime()), nil
}

// DetectMimeType returns the media type of data without parameters.
func DetectMimeType(data []byte) string {
	mimeType, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return mimeType
}

// Size returns the payload size in bytes.
func (f ImageFile) Size() int64 {
	return int64(len(f.Data))
}

// Reader returns a reader over the payload.
func (f ImageFile) Reader() *bytes.Reader {
	return bytes.NewReader(f.Data)
}

// SizeMB returns the payload size in megabytes.
func (f ImageFile) SizeMB() float64 {
	return BytesToMB(f.Size())
}

// BytesToMB converts a byte count to megabytes.
func BytesToMB(n int64) float64 {
	return float64(n) / BytesPerMB
}
