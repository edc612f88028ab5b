// Package storage opens the TabularStore selected by the configuration.
package storage

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
	"github.com/anasaran05/learnsync/core/progress"
	"github.com/anasaran05/learnsync/services/sheets"
	"github.com/anasaran05/learnsync/storage/tabular/inmem"
	"github.com/anasaran05/learnsync/storage/tabular/xlsx"
)

// Store is an opened TabularStore along with its lifecycle hooks.
type Store struct {
	progress.TabularStore

	// Tokens is set for the sheets backend only.
	Tokens *sheets.TokenProvider

	watch func(ctx context.Context, onChange func()) error
	close func() error
}

// Open returns the store of conf.Store.Backend.
func Open(conf *core.Config, logger core.Logger) (*Store, error) {
	switch conf.Store.Backend {
	case core.BackendSheets:
		httpClient := &http.Client{Timeout: 30 * time.Second}
		tokens, err := sheets.NewTokenProviderFromConfig(conf.Sheets, httpClient)
		if err != nil {
			return nil, errors.Wrap(err, "setting up token provider")
		}
		return &Store{
			TabularStore: sheets.NewClient(conf.Sheets.BaseURL, tokens, httpClient),
			Tokens:       tokens,
		}, nil

	case core.BackendXLSX:
		file, err := xlsx.Open(conf.Store.XLSXPath, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", conf.Store.XLSXPath)
		}
		return &Store{TabularStore: file, watch: file.Watch, close: file.Close}, nil

	case core.BackendMemory:
		return &Store{TabularStore: inmem.NewStore()}, nil

	default:
		return nil, errors.Errorf("unknown store backend %q", conf.Store.Backend)
	}
}

// Watch calls onChange whenever the store is modified by someone else, until ctx is done.
// It returns immediately for stores that cannot be watched.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	if s.watch == nil {
		return nil
	}
	return s.watch(ctx, onChange)
}

// Watchable reports whether Watch observes external changes.
func (s *Store) Watchable() bool {
	return s.watch != nil
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
