package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"image-normalizer-go/internal/config"
	"image-normalizer-go/internal/imagefile"
	"image-normalizer-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// Duplicate handling strategies for LocalSink.
const (
	DuplicateRename    = "rename"
	DuplicateSkip      = "skip"
	DuplicateOverwrite = "overwrite"
)

// LocalSink writes files into a directory. Each file is written to a temporary
// file first and renamed into place, so readers never observe partial output.
type LocalSink struct {
	dir        string
	duplicates string
	log        *logrus.Logger

	// mu serializes the exists-check and rename of concurrent saves.
	mu sync.Mutex
}

// NewLocalSink creates dir if needed.
func NewLocalSink(dir, duplicates string, log *logrus.Logger) (*LocalSink, error) {
	switch duplicates {
	case "":
		duplicates = DuplicateRename
	case DuplicateRename, DuplicateSkip, DuplicateOverwrite:
	default:
		return nil, fmt.Errorf("unknown duplicate handling strategy: %s", duplicates)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &LocalSink{dir: dir, duplicates: duplicates, log: log}, nil
}

// Save writes file and returns its final path. The file's modification time
// is set to file.LastModified when that is known.
func (s *LocalSink) Save(ctx context.Context, file imagefile.ImageFile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := filepath.Base(file.Name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name: %q", file.Name)
	}

	tmp, err := s.writeTemp(name, file)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp) // no-op after a successful rename

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.dir, name)
	if _, err := os.Stat(target); err == nil {
		switch s.duplicates {
		case DuplicateSkip:
			logger.ForSink(s.log, config.StorageLocal, name).Infof("Skipping duplicate file: %s", target)
			return target, nil
		case DuplicateOverwrite:
			logger.ForSink(s.log, config.StorageLocal, name).Infof("Overwriting existing file: %s", target)
		default:
			target = uniqueFilename(target)
			logger.ForSink(s.log, config.StorageLocal, name).Infof("Renaming duplicate file: %s", target)
		}
	}

	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("move %s into place: %w", name, err)
	}
	return target, nil
}

func (s *LocalSink) writeTemp(name string, file imagefile.ImageFile) (string, error) {
	f, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(file.Data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		os.Remove(path)
		return "", err
	}
	if !file.LastModified.IsZero() {
		if err := os.Chtimes(path, file.LastModified, file.LastModified); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("set modification time: %w", err)
		}
	}
	return path, nil
}

// uniqueFilename returns a unique filename by adding a counter.
func uniqueFilename(basePath string) string {
	dir := filepath.Dir(basePath)
	name := filepath.Base(basePath)
	ext := filepath.Ext(name)
	nameWithoutExt := strings.TrimSuffix(name, ext)

	counter := 1
	for {
		newPath := filepath.Join(dir, fmt.Sprintf("%s_%d%s", nameWithoutExt, counter, ext))
		if _, err := os.Stat(newPath); os.IsNotExist(err) {
			return newPath
		}
		counter++
	}
}
