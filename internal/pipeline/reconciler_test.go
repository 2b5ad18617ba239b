package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type scriptedClassifier struct {
	replies map[string]string
	err     error
	calls   int
}

func (c *scriptedClassifier) Classify(_ context.Context, prompt string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	for memo, reply := range c.replies {
		if strings.Contains(prompt, memo) {
			return reply, nil
		}
	}
	return "no", nil
}

func newTestReconciler(t *testing.T, grid *fakeCellGrid, classifier Classifier) *Reconciler {
	t.Helper()
	ledger, err := NewLedger(LedgerOptions{Grid: grid})
	if err != nil {
		t.Fatalf("new ledger failed: %v", err)
	}
	matcher, err := NewMatcher(classifier, nil)
	if err != nil {
		t.Fatalf("new matcher failed: %v", err)
	}
	fixed := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)
	reconciler, err := NewReconciler(ReconcilerOptions{
		Ledger:  ledger,
		Matcher: matcher,
		Now:     func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("new reconciler failed: %v", err)
	}
	return reconciler
}

func TestReconcileClaimsFirstMatchingRow(t *testing.T) {
	grid := &fakeCellGrid{values: [][]string{
		{"Timestamp", "Memo", "Link"},
		{"2024/05/02 09:30:00", "富邦2024年第一季季報", ""},
		{"2024/05/01 08:00:00", "台積電年報筆記", ""},
	}}
	classifier := &scriptedClassifier{replies: map[string]string{"富邦": "yes"}}
	reconciler := newTestReconciler(t, grid, classifier)

	matched, err := reconciler.Reconcile(context.Background(), "https://blob.example/obj/view", "富邦Q1.pdf")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !matched {
		t.Fatalf("expected a match")
	}
	if len(grid.updates) != 1 || grid.updates[0].rng != "C2" {
		t.Fatalf("expected link written to C2, got %+v", grid.updates)
	}
	if classifier.calls != 1 {
		t.Fatalf("expected scan to stop at first match, got %d oracle calls", classifier.calls)
	}
}

func TestReconcileSkipsLinkedAndEmptyRows(t *testing.T) {
	grid := &fakeCellGrid{values: [][]string{
		{"Timestamp", "Memo", "Link"},
		{"2024/05/03 09:30:00", "already linked memo", "https://blob.example/old/view"},
		{"2024/05/02 09:00:00", "", ""},
		{"2024/05/01 08:00:00", "unlinked memo", ""},
	}}
	classifier := &scriptedClassifier{replies: map[string]string{"unlinked memo": "yes"}}
	reconciler := newTestReconciler(t, grid, classifier)

	matched, err := reconciler.Reconcile(context.Background(), "https://blob.example/obj/view", "file.pdf")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !matched {
		t.Fatalf("expected the unlinked row to match")
	}
	if classifier.calls != 1 {
		t.Fatalf("expected only the eligible row to reach the oracle, got %d calls", classifier.calls)
	}
	if grid.updates[0].rng != "C4" {
		t.Fatalf("expected link written to C4, got %s", grid.updates[0].rng)
	}
}

func TestReconcileAppendsRowWhenNothingMatches(t *testing.T) {
	grid := &fakeCellGrid{values: [][]string{
		{"Timestamp", "Memo", "Link"},
		{"2024/05/02 09:30:00", "unrelated memo", ""},
	}}
	classifier := &scriptedClassifier{}
	reconciler := newTestReconciler(t, grid, classifier)

	matched, err := reconciler.Reconcile(context.Background(), "https://blob.example/obj/view", "orphan.pdf")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if matched {
		t.Fatalf("expected no match")
	}
	inserted := grid.values[1]
	if inserted[0] != "2024/05/03 10:00:00" {
		t.Fatalf("expected fresh timestamp on appended row, got %q", inserted[0])
	}
	if inserted[1] != "" {
		t.Fatalf("expected empty note text on appended row, got %q", inserted[1])
	}
	if inserted[2] != "https://blob.example/obj/view" {
		t.Fatalf("expected link on appended row, got %q", inserted[2])
	}
}

func TestReconcileTreatsOracleOutageAsNoMatch(t *testing.T) {
	grid := &fakeCellGrid{values: [][]string{
		{"Timestamp", "Memo", "Link"},
		{"2024/05/02 09:30:00", "memo", ""},
	}}
	classifier := &scriptedClassifier{err: errors.New("oracle down")}
	reconciler := newTestReconciler(t, grid, classifier)

	matched, err := reconciler.Reconcile(context.Background(), "https://blob.example/obj/view", "file.pdf")
	if err != nil {
		t.Fatalf("expected reconcile to fall back to append, got %v", err)
	}
	if matched {
		t.Fatalf("expected no match when the oracle is down")
	}
	if len(grid.values) != 3 {
		t.Fatalf("expected a new row to be appended, got %d rows", len(grid.values))
	}
}

func TestReconcileRejectsInvalidInput(t *testing.T) {
	reconciler := newTestReconciler(t, &fakeCellGrid{}, &scriptedClassifier{})
	if _, err := reconciler.Reconcile(context.Background(), "", "file.pdf"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty link, got %v", err)
	}
	if _, err := reconciler.Reconcile(context.Background(), "https://blob.example/x", " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty label, got %v", err)
	}
}

func TestReconcilePropagatesLedgerFailure(t *testing.T) {
	grid := &fakeCellGrid{failReads: true}
	reconciler := newTestReconciler(t, grid, &scriptedClassifier{})
	if _, err := reconciler.Reconcile(context.Background(), "https://blob.example/x", "file.pdf"); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}
