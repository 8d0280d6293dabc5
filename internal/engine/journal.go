package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/varun432/algotrader/internal/stats"
)

// Record is one NDJSON journal entry: a fill, a risk rejection, or a
// finalized day/period stats block. The journal is the lifetime order log
// plus enough context to reconstruct every decision.
type Record struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Symbol    string    `json:"symbol,omitempty"`

	Direction     string  `json:"direction,omitempty"`
	Qty           int     `json:"qty,omitempty"`
	Price         float64 `json:"price,omitempty"`
	ExpectedPrice float64 `json:"expected_price,omitempty"`
	OrderRef      string  `json:"order_ref,omitempty"`
	NettProfit    float64 `json:"nett_profit,omitempty"`
	Reason        string  `json:"reason,omitempty"`

	Day    *stats.DayStats    `json:"day_stats,omitempty"`
	Period *stats.PeriodStats `json:"period_stats,omitempty"`
}

const (
	recordFill   = "fill"
	recordReject = "reject"
	recordEOD    = "eod_stats"
	recordEOP    = "eop_stats"
)

// Journal appends records to an NDJSON file, one run id per process run.
type Journal struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{
		runID:  ulid.Make().String(),
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (j *Journal) RunID() string {
	if j == nil {
		return ""
	}
	return j.runID
}

// Append writes one record. Journal failures never interrupt trading; they
// are reported on stderr and dropped.
func (j *Journal) Append(rec Record) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rec.RunID = j.runID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal journal record: %v\n", err)
		return
	}
	if _, err := j.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write journal record: %v\n", err)
		return
	}
	if err := j.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush journal: %v\n", err)
	}
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}
