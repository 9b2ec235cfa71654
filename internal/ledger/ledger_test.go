package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempLedger(t *testing.T) (string, *Ledger) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return path, l
}

func TestRecordAndVerifyChain(t *testing.T) {
	path, l := tempLedger(t)
	entries := []Entry{
		{Kind: KindDecision, SourceID: "203.0.113.9", Decision: "block", Score: 6},
		{Kind: KindSubmit, ItemID: "w-1", SubmitterID: "npo-1", Priority: 0.8},
		{Kind: KindDispatch, ItemID: "w-1", SubmitterID: "npo-1", Priority: 0.8},
	}
	for _, e := range entries {
		if err := l.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	l.Close()

	res := Verify(path)
	if !res.Valid {
		t.Fatalf("expected valid chain: %s (line %d)", res.Error, res.ErrorLine)
	}
	if res.Lines != 3 {
		t.Errorf("expected 3 lines, got %d", res.Lines)
	}
}

func TestReopenRecoversChainTail(t *testing.T) {
	path, l := tempLedger(t)
	l.Record(Entry{Kind: KindDecision, SourceID: "a", Decision: "allow"})
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l2.Record(Entry{Kind: KindDecision, SourceID: "b", Decision: "block"})
	l2.Close()

	res := Verify(path)
	if !res.Valid || res.Lines != 2 {
		t.Fatalf("expected intact 2-line chain, got %+v", res)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	path, l := tempLedger(t)
	l.Record(Entry{Kind: KindDecision, SourceID: "a", Decision: "allow"})
	l.Record(Entry{Kind: KindDecision, SourceID: "b", Decision: "block"})
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"allow"`, `"block"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	res := Verify(path)
	if res.Valid {
		t.Error("expected tampering to break the chain")
	}
	if res.ErrorLine != 2 {
		t.Errorf("expected break at line 2, got %d", res.ErrorLine)
	}
}

func TestReplayStreamsInOrder(t *testing.T) {
	path, l := tempLedger(t)
	l.Record(Entry{Kind: KindSubmit, ItemID: "w-1"})
	l.Record(Entry{Kind: KindDispatch, ItemID: "w-1"})
	l.Record(Entry{Kind: KindReject, ItemID: "w-2"})
	l.Close()

	var kinds []string
	err := Replay(path, func(e Entry) error {
		kinds = append(kinds, e.Kind)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	want := []string{KindSubmit, KindDispatch, KindReject}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestVerifyMissingFile(t *testing.T) {
	res := Verify(filepath.Join(t.TempDir(), "nope.jsonl"))
	if res.Valid {
		t.Error("expected invalid result for missing file")
	}
}
