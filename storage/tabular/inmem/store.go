// Package inmem is an in-memory TabularStore, used by tests and local development.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core/progress"
	"github.com/anasaran05/learnsync/storage/tabular"
)

type sheet [][]string

type Store struct {
	mutex sync.Mutex
	books map[string]map[string]sheet // {storeID: {sheetName: rows}}

	// readDelay is waited after a read snapshot is taken, widening read-then-write races.
	readDelay time.Duration

	reads, writes, appends int
}

var _ progress.TabularStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{books: make(map[string]map[string]sheet)}
}

// SetReadDelay makes every ReadRange wait d after reading.
func (s *Store) SetReadDelay(d time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.readDelay = d
}

// Calls returns the number of read, write and append calls served so far.
func (s *Store) Calls() (reads, writes, appends int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.reads, s.writes, s.appends
}

// Rows returns a copy of every row of the given sheet.
func (s *Store) Rows(storeID, sheetName string) [][]string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sh := s.books[storeID][sheetName]
	rows := make([][]string, 0, len(sh))
	for _, row := range sh {
		rows = append(rows, append([]string(nil), row...))
	}
	return rows
}

func (s *Store) sheet(storeID, name string) sheet {
	book, ok := s.books[storeID]
	if !ok {
		book = make(map[string]sheet)
		s.books[storeID] = book
	}
	return book[name]
}

func (s *Store) setSheet(storeID, name string, sh sheet) {
	s.books[storeID][name] = sh
}

func (s *Store) ReadRange(ctx context.Context, storeID, rng string) ([][]string, error) {
	r, err := tabular.ParseRange(rng)
	if err != nil {
		return nil, errors.Wrap(err, "parsing range")
	}

	s.mutex.Lock()
	s.reads++
	sh := s.sheet(storeID, r.Sheet)
	last := len(sh)
	if r.EndRow != 0 && r.EndRow < last {
		last = r.EndRow
	}
	var rows [][]string
	for i := r.FirstRow() - 1; i < last; i++ {
		rows = append(rows, tabular.Cut(sh[i], r))
	}
	delay := s.readDelay
	s.mutex.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return tabular.TrimRows(rows), nil
}

func (s *Store) WriteRange(_ context.Context, storeID, rng string, rows [][]string) error {
	r, err := tabular.ParseRange(rng)
	if err != nil {
		return errors.Wrap(err, "parsing range")
	}

	if r.EndRow != 0 && len(rows) > r.EndRow-r.FirstRow()+1 {
		return errors.Errorf("%d rows do not fit in range %q", len(rows), rng)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.writes++

	sh := s.sheet(storeID, r.Sheet)
	for i, row := range rows {
		n := r.FirstRow() - 1 + i
		for len(sh) <= n {
			sh = append(sh, nil)
		}
		sh[n] = paste(sh[n], row, r)
	}
	s.setSheet(storeID, r.Sheet, sh)
	return nil
}

func (s *Store) AppendRows(_ context.Context, storeID, rng string, rows [][]string) error {
	r, err := tabular.ParseRange(rng)
	if err != nil {
		return errors.Wrap(err, "parsing range")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.appends++

	sh := s.sheet(storeID, r.Sheet)
	sh = sh[:tabular.TableEnd(sh, r)]
	for _, row := range rows {
		sh = append(sh, paste(nil, row, r))
	}
	s.setSheet(storeID, r.Sheet, sh)
	return nil
}

// paste writes cells into row starting at the first column of r.
func paste(row, cells []string, r tabular.Range) []string {
	for len(row) < r.StartCol+len(cells) {
		row = append(row, "")
	}
	for i, cell := range cells {
		if i >= r.Width() {
			break
		}
		row[r.StartCol+i] = cell
	}
	return row
}
