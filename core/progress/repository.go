package progress

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
)

// Handle points at the stored row of a Key.
type Handle struct {
	Row int // 1-based, the header being row 1
}

// Repository maps Records to rows of the progress table.
//
// Upserts are serialized per Key: the store has no conditional write, so two concurrent
// upserts of a new key would otherwise both see "no row" and both append.
// The serialization is process-local; several instances writing the same key can still race.
type Repository struct {
	store   TabularStore
	storeID string
	sheet   string
	cache   *Cache

	locks    *keyLocker
	headerMu sync.Mutex // held while the header row is written or repaired
}

func NewRepository(store TabularStore, storeID, sheet string, cache *Cache) *Repository {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	return &Repository{
		store:   store,
		storeID: storeID,
		sheet:   sheet,
		cache:   cache,
		locks:   newKeyLocker(),
	}
}

// Cache returns the cache the repository reads through.
func (repo *Repository) Cache() *Cache {
	return repo.cache
}

type table struct {
	header []string
	rows   [][]string // data rows; rows[i] is sheet row i+2
}

func (repo *Repository) readTable(ctx context.Context) (table, error) {
	values, err := repo.store.ReadRange(ctx, repo.storeID, TableRange(repo.sheet))
	if err != nil {
		return table{}, errors.Wrap(err, "reading progress table")
	}
	if len(values) == 0 {
		return table{}, nil
	}
	return table{header: values[0], rows: values[1:]}, nil
}

// List returns the records of owner, from the cache if possible.
func (repo *Repository) List(ctx context.Context, owner string) ([]Record, error) {
	if records, ok := repo.cache.Get(owner); ok {
		return records, nil
	}

	version := repo.cache.Version(owner)
	tbl, err := repo.readTable(ctx)
	if err != nil {
		return nil, err
	}

	cols := newColumns(tbl.header)
	records := make([]Record, 0)
	for _, row := range tbl.rows {
		if cols.cell(row, ColOwner) == owner {
			records = append(records, cols.record(row))
		}
	}
	repo.cache.SetIfVersion(owner, records, version)
	return records, nil
}

// Locate finds the stored row of key, reading the table fresh. A nil Handle means no row exists.
func (repo *Repository) Locate(ctx context.Context, key Key) (*Handle, error) {
	h, _, err := repo.locate(ctx, key)
	return h, err
}

// locate also returns the header row of the table, nil when the table is empty.
func (repo *Repository) locate(ctx context.Context, key Key) (h *Handle, header []string, err error) {
	tbl, err := repo.readTable(ctx)
	if err != nil {
		return nil, nil, err
	}
	cols := newColumns(tbl.header)
	for i, row := range tbl.rows {
		if cols.cell(row, ColOwner) == key.OwnerID && cols.cell(row, ColTask) == key.TaskID {
			return &Handle{Row: i + 2}, tbl.header, nil
		}
	}
	return nil, tbl.header, nil
}

// Write replaces the row at h with rec, or appends rec when h is nil.
// The row is replaced wholesale: fields absent from rec are stored empty.
// Cells are laid out after the stored header, so reads and writes agree on column positions.
func (repo *Repository) Write(ctx context.Context, h *Handle, rec Record) error {
	tbl, err := repo.readTable(ctx)
	if err != nil {
		return err
	}
	if len(tbl.header) == 0 {
		if done, err := repo.bootstrap(ctx, rec); done || err != nil {
			return err
		}
		if tbl, err = repo.readTable(ctx); err != nil {
			return err
		}
	}
	return repo.write(ctx, h, tbl.header, rec)
}

func (repo *Repository) write(ctx context.Context, h *Handle, header []string, rec Record) error {
	cols := newColumns(header)
	if len(cols.missing()) > 0 {
		var err error
		if cols, err = repo.repairHeader(ctx); err != nil {
			return err
		}
	}

	if h != nil {
		err := repo.store.WriteRange(ctx, repo.storeID, RowRange(repo.sheet, h.Row), [][]string{cols.row(rec)})
		return errors.Wrapf(err, "replacing row %d", h.Row)
	}
	err := repo.store.AppendRows(ctx, repo.storeID, TableRange(repo.sheet), [][]string{cols.row(rec)})
	return errors.Wrap(err, "appending row")
}

// Upsert stores rec as the row of (owner, rec.TaskID), replacing any existing row.
func (repo *Repository) Upsert(ctx context.Context, owner string, rec Record) error {
	rec.OwnerID = owner
	rec.Clean()
	if missing := rec.MissingFields(); len(missing) > 0 {
		flds := make([]core.FieldError, 0, len(missing))
		for _, name := range missing {
			flds = append(flds, core.FieldError{Field: name, Error: "this field is required"})
		}
		return core.NewValidationError(
			errors.Errorf("%s: %s", core.ErrMissingFields, strings.Join(missing, ", ")),
			flds...,
		)
	}

	unlock := repo.locks.Lock(rec.Key())
	defer unlock()
	defer repo.cache.Invalidate(owner)

	h, header, err := repo.locate(ctx, rec.Key())
	if err != nil {
		return errors.Wrap(err, "locating row")
	}
	if len(header) == 0 {
		done, err := repo.bootstrap(ctx, rec)
		if done || err != nil {
			return err
		}
		// another key bootstrapped the table meanwhile
		if h, header, err = repo.locate(ctx, rec.Key()); err != nil {
			return errors.Wrap(err, "locating row")
		}
	}
	return repo.write(ctx, h, header, rec)
}

// bootstrap writes the header along with the first row of an empty table.
// It reports false when the table already has a header.
func (repo *Repository) bootstrap(ctx context.Context, rec Record) (bool, error) {
	repo.headerMu.Lock()
	defer repo.headerMu.Unlock()

	tbl, err := repo.readTable(ctx)
	if err != nil {
		return false, err
	}
	if len(tbl.header) > 0 {
		return false, nil
	}
	err = repo.store.AppendRows(ctx, repo.storeID, TableRange(repo.sheet), [][]string{Header, rec.Row()})
	return err == nil, errors.Wrap(err, "appending row")
}

// repairHeader names the columns missing from the header in its empty cells, so every field
// of a Record has a column. Existing columns keep their position.
func (repo *Repository) repairHeader(ctx context.Context) (columns, error) {
	repo.headerMu.Lock()
	defer repo.headerMu.Unlock()

	tbl, err := repo.readTable(ctx)
	if err != nil {
		return nil, err
	}
	header := make([]string, len(tbl.header), len(Header))
	copy(header, tbl.header)
	missing := newColumns(header).missing()
	if len(missing) == 0 {
		return newColumns(header), nil
	}

	for len(header) < len(Header) {
		header = append(header, "")
	}
	for i := range header {
		if len(missing) > 0 && strings.TrimSpace(header[i]) == "" {
			header[i] = missing[0]
			missing = missing[1:]
		}
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("progress table header has no room for columns %s", strings.Join(missing, ", "))
	}

	if err = repo.store.WriteRange(ctx, repo.storeID, RowRange(repo.sheet, 1), [][]string{header}); err != nil {
		return nil, errors.Wrap(err, "repairing header")
	}
	repo.cache.InvalidateAll()
	return newColumns(header), nil
}
