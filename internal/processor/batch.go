package processor

import (
	"context"
	"slices"

	"image-normalizer-go/internal/imagefile"
)

// Operation transforms a single file.
type Operation func(ctx context.Context, file imagefile.ImageFile) (imagefile.ImageFile, error)

// Result is one element of a batch stream: a processed file or the terminal error.
type Result struct {
	File imagefile.ImageFile
	Err  error
}

// Sequence runs op over files strictly in order and streams each output.
//
// The returned channel is unbuffered: op is not called for file i+1 until the
// consumer has received the result for file i. The first failure is sent as a
// Result whose Err is a *FileError naming the file, and no later file is
// processed. An empty files slice yields exactly one Result carrying
// ErrNoFilesReceived. The channel is closed after the last element.
//
// Cancelling ctx stops the producer even when nobody is receiving.
func Sequence(ctx context.Context, files []imagefile.ImageFile, op Operation) <-chan Result {
	return sequence(ctx, files, op, nil)
}

func sequence(ctx context.Context, files []imagefile.ImageFile, op Operation, done func(error)) <-chan Result {
	files = slices.Clone(files)
	out := make(chan Result)

	go func() {
		defer close(out)

		var terminal error
		if done != nil {
			defer func() { done(terminal) }()
		}

		if len(files) == 0 {
			terminal = newError(KindNoFilesReceived, nil, nil)
			send(ctx, out, Result{Err: terminal})
			return
		}

		for _, file := range files {
			processed, err := op(ctx, file)
			if err != nil {
				terminal = tagFile(err, file)
				send(ctx, out, Result{Err: terminal})
				return
			}
			if !send(ctx, out, Result{File: processed}) {
				terminal = ctx.Err()
				return
			}
		}
	}()

	return out
}

func send(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains results. It returns the files received before the stream
// ended and the terminal error, if any.
func Collect(results <-chan Result) ([]imagefile.ImageFile, error) {
	var files []imagefile.ImageFile
	for r := range results {
		if r.Err != nil {
			for range results {
			}
			return files, r.Err
		}
		files = append(files, r.File)
	}
	return files, nil
}
