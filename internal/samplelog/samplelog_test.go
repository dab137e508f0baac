package samplelog_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dbsyz/mm-core/internal/samplelog"
)

func sampleRecord() samplelog.Record {
	return samplelog.Record{
		CaptureTimeUTC: "2024-01-02T03:04:05.123456+00:00",
		RecvTsMs:       1704164645123.456,
		ExchangeTs:     "2024-01-02T03:04:05.100Z",
		ExchangeTsMs:   1704164645100.0,
		Symbol:         "BTC/EUR",
		Bid:            42000.1,
		Ask:            42000.5,
		BidQty:         0.25,
		AskQty:         0.5,
		RawAgeMs:       23.456,
		AdjustedAgeMs:  21.956,
		E2ESinceSubMs:  1500.789,
	}
}

func TestOpenCreatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "latency.csv")

	w, err := samplelog.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := strings.Join(samplelog.Header, ",") + "\n"
	if string(data) != want {
		t.Errorf("expected header only, got %q", string(data))
	}
}

func TestOpenReopensMatchingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.csv")

	w, err := samplelog.Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if err := w.Append(sampleRecord()); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	w.Close()

	// Reopening must not duplicate the header.
	w, err = samplelog.Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	if err := w.Append(sampleRecord()); err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	w.Close()

	f, err := samplelog.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(f.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(f.Rows))
	}
}

func TestOpenHeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.csv")
	if err := os.WriteFile(path, []byte("capture_time_utc,data_age_ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := samplelog.Open(path)
	if !errors.Is(err, samplelog.ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch, got %v", err)
	}
}

func TestAppendReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.csv")
	w, err := samplelog.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	rec := sampleRecord()
	if err := w.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	w.Close()

	f, err := samplelog.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(f.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(f.Rows))
	}
	row := f.Rows[0]

	adj, ok := samplelog.ParseFloat(row, f.Index("adjusted_age_ms"))
	if !ok {
		t.Fatal("adjusted_age_ms did not parse")
	}
	// Millisecond precision survives the round trip.
	if math.Abs(adj-rec.AdjustedAgeMs) > 0.001 {
		t.Errorf("adjusted_age_ms round trip: want %f, got %f", rec.AdjustedAgeMs, adj)
	}
	bid, ok := samplelog.ParseFloat(row, f.Index("bid"))
	if !ok || bid != rec.Bid {
		t.Errorf("bid round trip: want %f, got %f", rec.Bid, bid)
	}
	if row[f.Index("symbol")] != "BTC/EUR" {
		t.Errorf("symbol round trip: got %s", row[f.Index("symbol")])
	}
}

func TestOpenRejectsSecondWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.csv")
	w, err := samplelog.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	if _, err := samplelog.Open(path); err == nil {
		t.Error("expected second Open to fail while lock is held")
	}
}

func TestSplitRuns(t *testing.T) {
	e2e := func(v float64) (float64, bool) { return v, v >= 0 }

	t.Run("boundary on decrease", func(t *testing.T) {
		runs := samplelog.SplitRuns([]float64{1000, 1200, 200, 300}, e2e)
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if len(runs[0]) != 2 || len(runs[1]) != 2 {
			t.Errorf("expected runs of length 2 and 2, got %d and %d", len(runs[0]), len(runs[1]))
		}
		if runs[1][0] != 200 {
			t.Errorf("second run should start at 200, got %f", runs[1][0])
		}
	})

	t.Run("single run", func(t *testing.T) {
		runs := samplelog.SplitRuns([]float64{10, 20, 20, 30}, e2e)
		if len(runs) != 1 {
			t.Fatalf("expected 1 run, got %d", len(runs))
		}
	})

	t.Run("rows without e2e stay in current run", func(t *testing.T) {
		runs := samplelog.SplitRuns([]float64{100, -1, 200, 50}, e2e)
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if len(runs[0]) != 3 {
			t.Errorf("expected first run of 3 rows, got %d", len(runs[0]))
		}
	})

	t.Run("empty", func(t *testing.T) {
		if runs := samplelog.SplitRuns(nil, e2e); runs != nil {
			t.Errorf("expected nil, got %v", runs)
		}
	})
}
