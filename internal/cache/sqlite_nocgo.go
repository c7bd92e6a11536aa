//go:build !cgo

package cache

import (
	"context"
	"time"
)

// SQLiteStore is unavailable without CGO; OpenSQLite always fails so hosts
// fall back to the memory or file backings.
type SQLiteStore struct{}

// OpenSQLite reports ErrCgoDisabled.
func OpenSQLite(string, ...Option) (*SQLiteStore, error) {
	return nil, ErrCgoDisabled
}

func (s *SQLiteStore) RequestCache(time.Duration) *SQLiteRequestCache { return &SQLiteRequestCache{} }
func (s *SQLiteStore) MetadataStore() *SQLiteMetadataStore             { return &SQLiteMetadataStore{} }
func (s *SQLiteStore) Close() error                                     { return nil }

type SQLiteRequestCache struct{}

func (*SQLiteRequestCache) Get(context.Context, string) (string, bool, error) {
	return "", false, ErrCgoDisabled
}
func (*SQLiteRequestCache) Put(context.Context, string, string) error { return ErrCgoDisabled }
func (*SQLiteRequestCache) Prune(context.Context) (int, error)        { return 0, ErrCgoDisabled }

type SQLiteMetadataStore struct{}

func (*SQLiteMetadataStore) Get(_ context.Context, _, _, def string) (string, error) {
	return def, ErrCgoDisabled
}
func (*SQLiteMetadataStore) Set(context.Context, string, string, string) error {
	return ErrCgoDisabled
}
