// Package xlsx is a TabularStore backed by a local workbook file.
// The store id is ignored: one file is one store.
package xlsx

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
	"github.com/anasaran05/learnsync/storage/tabular"
)

type Store struct {
	path   string
	logger core.Logger

	mutex   sync.Mutex
	file    *excelize.File
	savedAt fileStamp // stamp of our last save, to tell our own writes from external edits
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

var _ progress.TabularStore = (*Store)(nil)

// Open loads the workbook at path, creating it if it does not exist yet.
func Open(path string, logger core.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := excelize.OpenFile(s.path)
	if os.IsNotExist(errors.Cause(err)) {
		f = excelize.NewFile()
		if err = f.SaveAs(s.path); err != nil {
			return errors.Wrapf(err, "creating %s", s.path)
		}
	} else if err != nil {
		return errors.Wrapf(err, "opening %s", s.path)
	}

	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = f
	s.savedAt = stamp(s.path)
	return nil
}

func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.file.Close()
}

func (s *Store) ensureSheet(name string) error {
	for _, sh := range s.file.GetSheetList() {
		if sh == name {
			return nil
		}
	}
	_, err := s.file.NewSheet(name)
	return errors.Wrapf(err, "creating sheet %q", name)
}

func (s *Store) rows(name string) ([][]string, error) {
	if err := s.ensureSheet(name); err != nil {
		return nil, err
	}
	rows, err := s.file.GetRows(name)
	return rows, errors.Wrapf(err, "reading sheet %q", name)
}

func (s *Store) ReadRange(_ context.Context, _, rng string) ([][]string, error) {
	r, err := tabular.ParseRange(rng)
	if err != nil {
		return nil, errors.Wrap(err, "parsing range")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	all, err := s.rows(r.Sheet)
	if err != nil {
		return nil, &core.StoreError{Message: err.Error()}
	}
	last := len(all)
	if r.EndRow != 0 && r.EndRow < last {
		last = r.EndRow
	}
	var rows [][]string
	for i := r.FirstRow() - 1; i < last; i++ {
		rows = append(rows, tabular.Cut(all[i], r))
	}
	return tabular.TrimRows(rows), nil
}

func (s *Store) WriteRange(_ context.Context, _, rng string, rows [][]string) error {
	r, err := tabular.ParseRange(rng)
	if err != nil {
		return errors.Wrap(err, "parsing range")
	}
	if r.EndRow != 0 && len(rows) > r.EndRow-r.FirstRow()+1 {
		return errors.Errorf("%d rows do not fit in range %q", len(rows), rng)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err = s.ensureSheet(r.Sheet); err != nil {
		return &core.StoreError{Message: err.Error()}
	}
	if err = s.setRows(r, r.FirstRow(), rows); err != nil {
		return err
	}
	return s.save()
}

func (s *Store) AppendRows(_ context.Context, _, rng string, rows [][]string) error {
	r, err := tabular.ParseRange(rng)
	if err != nil {
		return errors.Wrap(err, "parsing range")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	all, err := s.rows(r.Sheet)
	if err != nil {
		return &core.StoreError{Message: err.Error()}
	}
	if err = s.setRows(r, tabular.TableEnd(all, r)+1, rows); err != nil {
		return err
	}
	return s.save()
}

// setRows writes rows from the 1-based row `first`, within the columns of r.
func (s *Store) setRows(r tabular.Range, first int, rows [][]string) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(r.StartCol+1, first+i)
		if err != nil {
			return errors.Wrap(err, "computing cell name")
		}
		vals := make([]interface{}, 0, r.Width())
		for j := 0; j < r.Width(); j++ {
			var v string
			if j < len(row) {
				v = row[j]
			}
			vals = append(vals, v)
		}
		if err = s.file.SetSheetRow(r.Sheet, cell, &vals); err != nil {
			return &core.StoreError{Message: err.Error()}
		}
	}
	return nil
}

func (s *Store) save() error {
	if err := s.file.SaveAs(s.path); err != nil {
		return &core.StoreError{Message: errors.Wrapf(err, "saving %s", s.path).Error()}
	}
	s.savedAt = stamp(s.path)
	return nil
}

func stamp(path string) fileStamp {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: fi.ModTime(), size: fi.Size()}
}

// Watch reloads the workbook whenever another process modifies the file, and calls onChange afterwards.
// It returns once ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err = watcher.Add(s.path); err != nil {
		return errors.Wrapf(err, "watching %s", s.path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if changed, err := s.reloadIfChanged(); err != nil {
				s.logger.Error("reloading workbook", err)
			} else if changed {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("workbook watcher", err)
		}
	}
}

func (s *Store) reloadIfChanged() (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if stamp(s.path) == s.savedAt {
		return false, nil // our own save
	}
	return true, s.load()
}
