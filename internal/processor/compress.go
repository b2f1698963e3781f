package processor

import (
	"context"
	"fmt"
	"image"
	"time"

	"image-normalizer-go/internal/imagefile"
	"image-normalizer-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// QualityState is the position of one compression in its quality search.
type QualityState struct {
	Quality float64
	Step    int
}

func (q *QualityState) next(reduction float64) {
	q.Quality -= q.Quality * reduction
	q.Step++
}

// CompressImage returns file re-encoded so that it is smaller than targetSizeMB.
// A file already within the budget is returned unchanged, synchronously and
// without deferral; batches still deliver it through the result channel.
// Failures are *FileError values naming file.
func (s *Service) CompressImage(ctx context.Context, file imagefile.ImageFile, targetSizeMB float64) (imagefile.ImageFile, error) {
	log := logger.ForOperation(s.log, "compress", logrus.Fields{"file": file.Name, "target_mb": targetSizeMB})

	if err := ctx.Err(); err != nil {
		s.recordFailure(file, "compress", err)
		return imagefile.ImageFile{}, tagFile(err, file)
	}

	if file.SizeMB() <= targetSizeMB {
		s.stats.IncrementFilesUnchanged()
		s.stats.IncrementMimeType(file.MimeType)
		s.stats.AddBytes(file.Size(), file.Size())
		log.Debug("Image already within budget")
		return file, nil
	}

	out, state, err := s.compress(ctx, file, targetSizeMB, log)
	if err != nil {
		s.recordFailure(file, "compress", err)
		log.WithError(err).Warn("Compression failed")
		return imagefile.ImageFile{}, tagFile(err, file)
	}

	s.stats.IncrementFilesCompressed()
	s.stats.IncrementMimeType(file.MimeType)
	s.stats.AddBytes(file.Size(), out.Size())
	s.stats.AddQualitySteps(state.Step)
	log.WithFields(logrus.Fields{
		"quality": state.Quality,
		"steps":   state.Step,
		"bytes":   out.Size(),
	}).Info("Image compressed")
	return out, nil
}

func (s *Service) compress(ctx context.Context, file imagefile.ImageFile, targetSizeMB float64, log *logrus.Entry) (imagefile.ImageFile, QualityState, error) {
	if targetSizeMB <= 0 {
		return imagefile.ImageFile{}, QualityState{}, newError(KindNotAbleToCompressEnough, &file,
			fmt.Errorf("target size must be positive, got %v MB", targetSizeMB))
	}

	canvas, err := s.load(ctx, file)
	if err != nil {
		return imagefile.ImageFile{}, QualityState{}, err
	}

	blob, state, err := s.search(ctx, canvas, file.MimeType, targetSizeMB, log)
	if err != nil {
		return imagefile.ImageFile{}, state, err
	}
	return imagefile.New(file.Name, file.MimeType, blob, time.Now()), state, nil
}

// search encodes canvas at decreasing quality until the blob is below
// targetSizeMB. Quality never increases; at most MaxSteps+1 encodes run.
func (s *Service) search(ctx context.Context, canvas image.Image, mimeType string, targetSizeMB float64, log *logrus.Entry) ([]byte, QualityState, error) {
	state := QualityState{Quality: 1.0}
	var lastMB float64

	for ; state.Step <= s.cfg.MaxSteps; state.next(s.cfg.QualityStep) {
		blob, err := s.engine.Encode(ctx, canvas, mimeType, state.Quality)
		if err != nil {
			return nil, state, err
		}

		lastMB = imagefile.BytesToMB(int64(len(blob)))
		log.WithFields(logrus.Fields{
			"step":    state.Step,
			"quality": state.Quality,
			"size_mb": lastMB,
		}).Debug("Encoded candidate")

		if lastMB < targetSizeMB {
			return blob, state, nil
		}
	}

	return nil, state, newError(KindNotAbleToCompressEnough, nil,
		fmt.Errorf("%.3f MB still above %.3f MB after %d steps", lastMB, targetSizeMB, s.cfg.MaxSteps))
}
