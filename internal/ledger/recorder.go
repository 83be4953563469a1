package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// jsonlLine shadows the date fields so unset dates are omitted instead of written as year one.
type jsonlLine struct {
	RunID string `json:"run_id"`
	TradeResult
	EntryDate *time.Time `json:"entry_date,omitempty"`
	ExitDate  *time.Time `json:"exit_date,omitempty"`
}

func newJSONLLine(runID string, res TradeResult) jsonlLine {
	return jsonlLine{
		RunID:       runID,
		TradeResult: res,
		EntryDate:   optionalDate(res.EntryDate),
		ExitDate:    optionalDate(res.ExitDate),
	}
}

func optionalDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// JSONLRecorder appends results as JSON lines tagged with the run id.
type JSONLRecorder struct {
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	runID string
	log   zerolog.Logger
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path, runID string, log zerolog.Logger) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file:  file,
		enc:   json.NewEncoder(file),
		runID: runID,
		log:   log,
	}, nil
}

// Record writes a single result. Write failures are logged, not returned.
func (r *JSONLRecorder) Record(res TradeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	if err := r.enc.Encode(newJSONLLine(r.runID, res)); err != nil {
		r.log.Warn().Err(err).Str("ticker", res.Ticker).Msg("jsonl write failed")
	}
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
