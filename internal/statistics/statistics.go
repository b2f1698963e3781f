package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains counters for resize and compress runs.
type Statistics struct {
	FilesReceived   int64
	FilesProcessed  int64
	FilesResized    int64
	FilesCompressed int64
	FilesUnchanged  int64
	FilesFailed     int64

	BatchesStarted   int64
	BatchesCompleted int64
	BatchesFailed    int64

	QualitySteps int64

	BytesIn  int64
	BytesOut int64

	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	FilesPerSecond  float64
	AverageSavedPct float64

	Errors []StatError

	mutex sync.RWMutex

	MimeTypeStats map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FileName  string    `json:"file_name"`
	Operation string    `json:"operation"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the counters, safe to serialize.
type Snapshot struct {
	FilesReceived    int64            `json:"files_received"`
	FilesProcessed   int64            `json:"files_processed"`
	FilesResized     int64            `json:"files_resized"`
	FilesCompressed  int64            `json:"files_compressed"`
	FilesUnchanged   int64            `json:"files_unchanged"`
	FilesFailed      int64            `json:"files_failed"`
	BatchesStarted   int64            `json:"batches_started"`
	BatchesCompleted int64            `json:"batches_completed"`
	BatchesFailed    int64            `json:"batches_failed"`
	QualitySteps     int64            `json:"quality_steps"`
	BytesIn          int64            `json:"bytes_in"`
	BytesOut         int64            `json:"bytes_out"`
	MimeTypes        map[string]int64 `json:"mime_types"`
	Errors           []StatError      `json:"errors"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		MimeTypeStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// IncrementFilesReceived adds n to the count of files handed to a batch.
func (s *Statistics) IncrementFilesReceived(n int) {
	atomic.AddInt64(&s.FilesReceived, int64(n))
}

// IncrementFilesResized increases the count of resized files by 1.
func (s *Statistics) IncrementFilesResized() {
	atomic.AddInt64(&s.FilesProcessed, 1)
	atomic.AddInt64(&s.FilesResized, 1)
}

// IncrementFilesCompressed increases the count of re-encoded files by 1.
func (s *Statistics) IncrementFilesCompressed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
	atomic.AddInt64(&s.FilesCompressed, 1)
}

// IncrementFilesUnchanged counts a file that was already under its size budget.
func (s *Statistics) IncrementFilesUnchanged() {
	atomic.AddInt64(&s.FilesProcessed, 1)
	atomic.AddInt64(&s.FilesUnchanged, 1)
}

// IncrementFilesFailed increases the count of failed files by 1.
func (s *Statistics) IncrementFilesFailed() {
	atomic.AddInt64(&s.FilesFailed, 1)
}

// IncrementBatchesStarted increases the count of started batches by 1.
func (s *Statistics) IncrementBatchesStarted() {
	atomic.AddInt64(&s.BatchesStarted, 1)
}

// IncrementBatchesCompleted increases the count of completed batches by 1.
func (s *Statistics) IncrementBatchesCompleted() {
	atomic.AddInt64(&s.BatchesCompleted, 1)
}

// IncrementBatchesFailed increases the count of failed batches by 1.
func (s *Statistics) IncrementBatchesFailed() {
	atomic.AddInt64(&s.BatchesFailed, 1)
}

// AddQualitySteps adds the number of quality reductions one compression needed.
func (s *Statistics) AddQualitySteps(steps int) {
	atomic.AddInt64(&s.QualitySteps, int64(steps))
}

// AddBytes records the input and output payload sizes of one file.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// IncrementMimeType increases the count for a specific mime type by 1.
func (s *Statistics) IncrementMimeType(mimeType string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.MimeTypeStats[mimeType]++
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(fileName, operation, kind, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FileName:  fileName,
		Operation: operation,
		Kind:      kind,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration, throughput and average savings.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	processed := atomic.LoadInt64(&s.FilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(processed) / s.Duration.Seconds()
	}

	in := atomic.LoadInt64(&s.BytesIn)
	out := atomic.LoadInt64(&s.BytesOut)
	if in > 0 {
		s.AverageSavedPct = float64(in-out) * 100 / float64(in)
	}
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	mimeTypes := make(map[string]int64, len(s.MimeTypeStats))
	for k, v := range s.MimeTypeStats {
		mimeTypes[k] = v
	}
	errs := make([]StatError, len(s.Errors))
	copy(errs, s.Errors)

	return Snapshot{
		FilesReceived:    atomic.LoadInt64(&s.FilesReceived),
		FilesProcessed:   atomic.LoadInt64(&s.FilesProcessed),
		FilesResized:     atomic.LoadInt64(&s.FilesResized),
		FilesCompressed:  atomic.LoadInt64(&s.FilesCompressed),
		FilesUnchanged:   atomic.LoadInt64(&s.FilesUnchanged),
		FilesFailed:      atomic.LoadInt64(&s.FilesFailed),
		BatchesStarted:   atomic.LoadInt64(&s.BatchesStarted),
		BatchesCompleted: atomic.LoadInt64(&s.BatchesCompleted),
		BatchesFailed:    atomic.LoadInt64(&s.BatchesFailed),
		QualitySteps:     atomic.LoadInt64(&s.QualitySteps),
		BytesIn:          atomic.LoadInt64(&s.BytesIn),
		BytesOut:         atomic.LoadInt64(&s.BytesOut),
		MimeTypes:        mimeTypes,
		Errors:           errs,
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return fmt.Sprintf(`Image Normalizer Statistics Summary:

Files:
		Received: %d
		Processed: %d
		Resized: %d
		Compressed: %d
		Already Within Budget: %d
		Failed: %d

Batches:
		Started: %d
		Completed: %d
		Failed: %d

Compression:
		Quality Steps: %d
		Bytes In: %s
		Bytes Out: %s
		Average Saved: %.1f%%

Performance:
		Duration: %v
		Files/Second: %.2f`,
		atomic.LoadInt64(&s.FilesReceived),
		atomic.LoadInt64(&s.FilesProcessed),
		atomic.LoadInt64(&s.FilesResized),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesUnchanged),
		atomic.LoadInt64(&s.FilesFailed),
		atomic.LoadInt64(&s.BatchesStarted),
		atomic.LoadInt64(&s.BatchesCompleted),
		atomic.LoadInt64(&s.BatchesFailed),
		atomic.LoadInt64(&s.QualitySteps),
		formatBytes(atomic.LoadInt64(&s.BytesIn)),
		formatBytes(atomic.LoadInt64(&s.BytesOut)),
		s.AverageSavedPct,
		s.Duration,
		s.FilesPerSecond)
}

// GetMimeTypeBreakdown returns a formatted breakdown of mime types processed.
func (s *Statistics) GetMimeTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.MimeTypeStats) == 0 {
		return "No mime type statistics available"
	}

	types := make([]string, 0, len(s.MimeTypeStats))
	for t := range s.MimeTypeStats {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString("Mime Type Breakdown:\n")
	for _, t := range types {
		fmt.Fprintf(&b, "  %s: %d\n", t, s.MimeTypeStats[t])
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.Kind,
			err.FileName,
			err.Error)
	}
	return result
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
