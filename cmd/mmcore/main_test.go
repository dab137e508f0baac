package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dbsyz/mm-core/internal/samplelog"
)

func writeFixtureLog(t *testing.T, rows ...samplelog.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "latency.csv")
	w, err := samplelog.Open(path)
	if err != nil {
		t.Fatalf("open fixture log: %v", err)
	}
	for _, rec := range rows {
		if err := w.Append(rec); err != nil {
			t.Fatalf("append fixture row: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close fixture log: %v", err)
	}
	return path
}

func fixtureRecord(capture string, tsMs, bid, ask, ageMs, e2eMs float64) samplelog.Record {
	return samplelog.Record{
		CaptureTimeUTC: capture,
		RecvTsMs:       tsMs + ageMs,
		ExchangeTs:     "2024-01-01T00:00:00Z",
		ExchangeTsMs:   tsMs,
		Symbol:         "BTC/EUR",
		Bid:            bid,
		Ask:            ask,
		BidQty:         1,
		AskQty:         1,
		RawAgeMs:       ageMs,
		AdjustedAgeMs:  ageMs,
		E2ESinceSubMs:  e2eMs,
	}
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	path := writeFixtureLog(t,
		fixtureRecord("t1", 1000, 100.0, 100.5, 10, 100),
		fixtureRecord("t2", 2000, 100.0, 100.5, 20, 200),
	)

	out, err := runCommand(t, "analyze", "--file", path)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	for _, want := range []string{"samples=2", "age_ms p50=15.000", "runs_detected=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeCommandMissingFile(t *testing.T) {
	_, err := runCommand(t, "analyze", "--file", filepath.Join(t.TempDir(), "absent.csv"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAuditCommandPass(t *testing.T) {
	path := writeFixtureLog(t,
		fixtureRecord("t1", 1000, 100.0, 100.5, 10, 100),
		fixtureRecord("t2", 2000, 100.0, 100.5, 20, 200),
	)

	out, err := runCommand(t, "audit", "--file", path, "--strict")
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if !strings.Contains(out, "qa_status=PASS") {
		t.Errorf("expected PASS:\n%s", out)
	}
}

func TestAuditCommandStrictFailure(t *testing.T) {
	// Crossed quote: bid above ask.
	path := writeFixtureLog(t,
		fixtureRecord("t1", 1000, 101.0, 100.5, 10, 100),
		fixtureRecord("t2", 2000, 100.0, 100.5, 20, 200),
	)

	out, err := runCommand(t, "audit", "--file", path, "--strict")
	if !errors.Is(err, errAuditFailed) {
		t.Fatalf("expected errAuditFailed, got %v", err)
	}
	if !strings.Contains(out, "qa_status=FAIL") {
		t.Errorf("expected FAIL:\n%s", out)
	}
}

func TestAuditCommandNonStrictReportsWithoutError(t *testing.T) {
	path := writeFixtureLog(t,
		fixtureRecord("t1", 1000, 101.0, 100.5, 10, 100),
	)

	out, err := runCommand(t, "audit", "--file", path)
	if err != nil {
		t.Fatalf("non-strict audit must not error: %v", err)
	}
	if !strings.Contains(out, "qa_status=FAIL") {
		t.Errorf("expected FAIL report:\n%s", out)
	}
}

func TestCollectCommandRejectsHeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.csv")
	if err := os.WriteFile(path, []byte("capture_time_utc,data_age_ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runCommand(t, "collect", "--out", path, "--url", "ws://127.0.0.1:1")
	if !errors.Is(err, samplelog.ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch before any connection attempt, got %v", err)
	}
}
