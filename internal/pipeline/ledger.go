package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// CellGrid is the tabular backend the ledger lives in: a 2-D cell grid
// addressed by A1-style ranges. Backends may trim trailing empty cells
// on read and leave cells omitted from an update untouched, so a
// full-range rewrite must spell out every column of every row.
type CellGrid interface {
	GetRange(ctx context.Context, rng string) ([][]string, error)
	UpdateRange(ctx context.Context, rng string, values [][]string) error
	AppendRange(ctx context.Context, rng string, values [][]string) error
}

type AppendPosition string

const (
	// AppendTop inserts new rows directly under the header, so the
	// newest entry sorts to the top.
	AppendTop AppendPosition = "top"
	// AppendBottom appends at the true end of the sheet.
	AppendBottom AppendPosition = "bottom"
)

// ledgerRange covers the three ledger columns:
// A = timestamp, B = note text, C = link.
const ledgerRange = "A:C"

// ledgerColumns is the width of the ledger range.
const ledgerColumns = 3

type LedgerOptions struct {
	Grid     CellGrid
	Position AppendPosition
}

// Ledger maps the row model onto the cell grid. Row indexes are data-row
// positions: row 0 is the first row under the header. The ledger does not
// enforce the set-once link rule itself; SetLink callers must only target
// rows whose link is currently empty (see Reconciler).
type Ledger struct {
	grid     CellGrid
	position AppendPosition
}

func NewLedger(opts LedgerOptions) (*Ledger, error) {
	if opts.Grid == nil {
		return nil, ErrInvalidInput
	}
	position := opts.Position
	switch position {
	case "":
		position = AppendTop
	case AppendTop, AppendBottom:
	default:
		return nil, fmt.Errorf("%w: append position %q", ErrInvalidInput, opts.Position)
	}
	return &Ledger{grid: opts.Grid, position: position}, nil
}

// ReadAll returns every data row in stored order. The first grid row is
// the header and is skipped.
func (l *Ledger) ReadAll(ctx context.Context) ([]Row, error) {
	values, err := l.grid.GetRange(ctx, ledgerRange)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if len(values) <= 1 {
		return []Row{}, nil
	}
	rows := make([]Row, 0, len(values)-1)
	for _, cells := range values[1:] {
		rows = append(rows, rowFromCells(cells))
	}
	return rows, nil
}

func (l *Ledger) Append(ctx context.Context, row Row) error {
	cells := []string{row.Timestamp, row.NoteText, row.Link}
	if l.position == AppendBottom {
		if err := l.grid.AppendRange(ctx, ledgerRange, [][]string{cells}); err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		return nil
	}

	// Top insert: rewrite the full range with the new row under the
	// header, matching the newest-first convention. Rows shift down by
	// one, so every row must be padded to the full ledger width; the
	// grid trims trailing empty cells on read and an update leaves
	// omitted cells untouched.
	values, err := l.grid.GetRange(ctx, ledgerRange)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if len(values) == 0 {
		values = [][]string{{"Timestamp", "Memo", "Link"}}
	}
	updated := make([][]string, 0, len(values)+1)
	updated = append(updated, padCells(values[0]))
	updated = append(updated, cells)
	for _, row := range values[1:] {
		updated = append(updated, padCells(row))
	}
	if err := l.grid.UpdateRange(ctx, ledgerRange, updated); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// SetLink writes the link cell of the given data row. The caller is
// responsible for only targeting rows with an empty link.
func (l *Ledger) SetLink(ctx context.Context, rowIndex int, link string) error {
	if rowIndex < 0 || strings.TrimSpace(link) == "" {
		return ErrInvalidInput
	}
	// +1 for the header row, +1 for one-based sheet addressing.
	rng := fmt.Sprintf("C%d", rowIndex+2)
	if err := l.grid.UpdateRange(ctx, rng, [][]string{{link}}); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// padCells widens a row to the full ledger width so a rewrite clears
// every cell it covers.
func padCells(cells []string) []string {
	if len(cells) >= ledgerColumns {
		return cells
	}
	padded := make([]string, ledgerColumns)
	copy(padded, cells)
	return padded
}

func rowFromCells(cells []string) Row {
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return Row{
		Timestamp: cell(0),
		NoteText:  cell(1),
		Link:      cell(2),
	}
}
