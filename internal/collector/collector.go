// Package collector expands command-line paths into ordered image files.
package collector

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"image-normalizer-go/internal/imagefile"
)

// CollectImagePaths expands inputPaths into the files with a supported extension.
// Paths keep their argument order; directories are walked recursively in lexical order.
func CollectImagePaths(inputPaths []string, extensions []string) ([]string, error) {
	extSet := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = struct{}{}
	}
	supported := func(name string) bool {
		_, ok := extSet[strings.ToLower(filepath.Ext(name))]
		return ok
	}

	var files []string
	for _, in := range inputPaths {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", in, err)
		}
		if !info.IsDir() {
			if supported(info.Name()) {
				files = append(files, in)
			}
			continue
		}

		err = filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supported(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", in, err)
		}
	}
	return files, nil
}

// Load reads paths with up to workers concurrent readers and returns the files
// in the order of paths. The first failing path, in that order, is reported.
func Load(ctx context.Context, paths []string, workers int) ([]imagefile.ImageFile, error) {
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 2)
	}
	workers = min(workers, max(len(paths), 1))

	type job struct {
		index int
		path  string
	}
	type result struct {
		index int
		file  imagefile.ImageFile
		err   error
	}

	jobs := make(chan job, len(paths))
	results := make(chan result, len(paths))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{index: j.index, err: err}
					continue
				}
				f, err := imagefile.Open(j.path)
				results <- result{index: j.index, file: f, err: err}
			}
		}()
	}

	for i, path := range paths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()
	close(results)

	files := make([]imagefile.ImageFile, len(paths))
	errs := make([]error, len(paths))
	for r := range results {
		files[r.index] = r.file
		errs[r.index] = r.err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
