package audit

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Recorder writes one append-only JSON line per guarded SQL execution.
// Writes are best-effort: an unavailable sink logs a warning once and
// never blocks or fails the request that produced the record.
type Recorder struct {
	logger zerolog.Logger
}

// NewFileRecorder opens (or creates) the audit file in append mode. When
// the file cannot be opened the recorder degrades to a discard sink.
func NewFileRecorder(path string) *Recorder {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("audit sink unavailable, discarding records")
		return NewRecorder(io.Discard)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("audit sink unavailable, discarding records")
		return NewRecorder(io.Discard)
	}
	return NewRecorder(f)
}

// NewRecorder builds a recorder over an arbitrary sink. Used directly in
// tests.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// Record emits one audit line. kind distinguishes executed queries from
// rejected ones.
func (r *Recorder) Record(tenantID, kind string, rowCount int, latency time.Duration) {
	if r == nil {
		return
	}
	r.logger.Info().
		Str("user_id", tenantID).
		Str("kind", kind).
		Int("row_count", rowCount).
		Float64("latency_ms", float64(latency.Microseconds())/1000).
		Send()
}
