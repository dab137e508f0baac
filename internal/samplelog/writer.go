// Package samplelog persists latency samples as an append-only CSV log and
// reads them back for offline analysis. The schema is versioned by its fixed
// header; consumers tolerate older rows that predate the adjusted-age columns.
package samplelog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// Header is the canonical 12-column schema.
var Header = []string{
	"capture_time_utc",
	"recv_ts_ms",
	"exchange_ts",
	"exchange_ts_ms",
	"symbol",
	"bid",
	"ask",
	"bid_qty",
	"ask_qty",
	"raw_age_ms",
	"adjusted_age_ms",
	"e2e_since_sub_ms",
}

// ErrHeaderMismatch indicates an existing log whose header does not match the
// canonical schema. Appending would produce incompatible rows, so this is a
// fatal setup error.
var ErrHeaderMismatch = errors.New("sample log header mismatch")

// Record is one persisted latency sample.
type Record struct {
	CaptureTimeUTC string
	RecvTsMs       float64
	ExchangeTs     string
	ExchangeTsMs   float64
	Symbol         string
	Bid            float64
	Ask            float64
	BidQty         float64
	AskQty         float64
	RawAgeMs       float64
	AdjustedAgeMs  float64
	E2ESinceSubMs  float64
}

// Writer appends records to a sample log. It holds an advisory lock for its
// lifetime so two collectors cannot interleave rows in one file.
type Writer struct {
	path string
	file *os.File
	csv  *csv.Writer
	lock *flock.Flock
}

// Open prepares the log at path for appending. A missing file is created with
// the canonical header; an existing file must carry exactly that header.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock sample log: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("sample log %s is in use by another collector", path)
	}

	needHeader, err := reconcileHeader(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sample log: %w", err)
	}

	w := &Writer{
		path: path,
		file: file,
		csv:  csv.NewWriter(file),
		lock: lock,
	}
	if needHeader {
		if err := w.csv.Write(Header); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return w, nil
}

// reconcileHeader reports whether the header still needs writing.
func reconcileHeader(path string) (bool, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("open sample log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		// Empty file: treat as new.
		return true, scanner.Err()
	}
	first := strings.TrimSpace(scanner.Text())
	if first != strings.Join(Header, ",") {
		return false, fmt.Errorf("%w for %s: use a new output path or migrate the file schema", ErrHeaderMismatch, path)
	}
	return false, nil
}

// Append writes one record and flushes it to the OS, so rows already appended
// survive an abrupt stop. Exactly one row is written per call.
func (w *Writer) Append(rec Record) error {
	row := []string{
		rec.CaptureTimeUTC,
		formatMs(rec.RecvTsMs),
		rec.ExchangeTs,
		formatMs(rec.ExchangeTsMs),
		rec.Symbol,
		formatPrice(rec.Bid),
		formatPrice(rec.Ask),
		formatPrice(rec.BidQty),
		formatPrice(rec.AskQty),
		formatMs(rec.RawAgeMs),
		formatMs(rec.AdjustedAgeMs),
		formatMs(rec.E2ESinceSubMs),
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("append sample: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("append sample: %w", err)
	}
	return nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes buffered rows, releases the lock and closes the file.
func (w *Writer) Close() error {
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	unlockErr := w.lock.Unlock()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return closeErr
	}
	return unlockErr
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
