package contentcache

import (
	"context"
	"fmt"
	"sync"

	"nino/internal/dbfacade"
	"nino/internal/domain"
)

// Requests is the read-through cache over nino_request, keyed by the
// normalized request path.
type Requests struct {
	mu      sync.RWMutex
	entries map[string]domain.RequestInfo
	db      *dbfacade.Facade
}

func NewRequests(db *dbfacade.Facade) *Requests {
	return &Requests{entries: make(map[string]domain.RequestInfo), db: db}
}

func (r *Requests) Reload(ctx context.Context) error {
	rows, err := r.db.Query(ctx, `SELECT request_path, response_name, redirect_flag,
		authorize_flag, dynamic_flag, execute_flag, request_mime_type FROM nino_request`)
	if err != nil {
		return fmt.Errorf("contentcache: reload requests: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]domain.RequestInfo)
	for rows.Next() {
		var path string
		var info domain.RequestInfo
		if err := rows.Scan(&path, &info.ResponseName, &info.Redirect,
			&info.Authorize, &info.Dynamic, &info.Execute, &info.Mime); err != nil {
			return fmt.Errorf("contentcache: scan request row: %w", err)
		}
		fresh[path] = info
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("contentcache: iterate requests: %w", err)
	}

	r.mu.Lock()
	r.entries = fresh
	r.mu.Unlock()
	return nil
}

// InvalidateOne re-reads a single path, used when a "request:<path>"
// notification carries a specific identifier.
func (r *Requests) InvalidateOne(ctx context.Context, path string) error {
	rows, err := r.db.QueryOpt(ctx, `SELECT response_name, redirect_flag, authorize_flag,
		dynamic_flag, execute_flag, request_mime_type FROM nino_request WHERE request_path = $1`, path)
	if err != nil {
		return fmt.Errorf("contentcache: invalidate request %q: %w", path, err)
	}
	if rows == nil {
		r.mu.Lock()
		delete(r.entries, path)
		r.mu.Unlock()
		return nil
	}
	defer rows.Close()
	var info domain.RequestInfo
	if err := rows.Scan(&info.ResponseName, &info.Redirect, &info.Authorize, &info.Dynamic, &info.Execute, &info.Mime); err != nil {
		return fmt.Errorf("contentcache: scan request %q: %w", path, err)
	}
	r.mu.Lock()
	r.entries[path] = info
	r.mu.Unlock()
	return nil
}

// Lookup returns the cached route for path, cloning the small value out so
// callers never observe a mutation mid-read.
func (r *Requests) Lookup(path string) (domain.RequestInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.entries[path]
	return info, ok
}
