package processor

import (
	"errors"
	"fmt"

	"image-normalizer-go/internal/imagefile"
)

// ErrorKind classifies why a file or a batch failed.
type ErrorKind int

const (
	// KindEngine covers anything raised by the decoder, orientation corrector,
	// resampler or encoder, including context cancellation.
	KindEngine ErrorKind = iota
	// KindNoFilesReceived means a batch was started with no files.
	KindNoFilesReceived
	// KindCanvasContextNotSupported means a destination pixel buffer could not be allocated.
	KindCanvasContextNotSupported
	// KindNotAbleToCompressEnough means the quality search ran out of steps.
	KindNotAbleToCompressEnough
)

var (
	ErrNoFilesReceived           = errors.New("no files received")
	ErrCanvasContextNotSupported = errors.New("canvas context identifier not supported")
	ErrNotAbleToCompressEnough   = errors.New("not be able to compress enough")
)

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNoFilesReceived:
		return "NO_FILES_RECEIVED"
	case KindCanvasContextNotSupported:
		return "CANVAS_CONTEXT_IDENTIFIER_NOT_SUPPORTED"
	case KindNotAbleToCompressEnough:
		return "NOT_BE_ABLE_TO_COMPRESS_ENOUGH"
	default:
		return "ENGINE_ERROR"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNoFilesReceived:
		return ErrNoFilesReceived
	case KindCanvasContextNotSupported:
		return ErrCanvasContextNotSupported
	case KindNotAbleToCompressEnough:
		return ErrNotAbleToCompressEnough
	default:
		return nil
	}
}

// FileError is the failure reported for a file or a batch.
// File is nil when no file is associated, as for KindNoFilesReceived.
type FileError struct {
	Kind ErrorKind
	File *imagefile.ImageFile
	Err  error
}

func (e *FileError) Error() string {
	name := "<none>"
	if e.File != nil {
		name = e.File.Name
	}
	if e.Err == nil {
		return fmt.Sprintf("[%v] file %s", e.Kind, name)
	}
	return fmt.Sprintf("[%v] file %s: %v", e.Kind, name, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind.
func (e *FileError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind carried by err, or KindEngine when err is not a FileError.
func KindOf(err error) ErrorKind {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindEngine
}

func newError(kind ErrorKind, file *imagefile.ImageFile, err error) *FileError {
	return &FileError{Kind: kind, File: file, Err: err}
}

// tagFile attaches file to err unless err already names one.
func tagFile(err error, file imagefile.ImageFile) error {
	var fe *FileError
	if errors.As(err, &fe) {
		if fe.File != nil {
			return err
		}
		return newError(fe.Kind, &file, fe.Err)
	}
	return newError(KindEngine, &file, err)
}
