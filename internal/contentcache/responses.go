package contentcache

import (
	"context"
	"fmt"
	"sync"

	"nino/internal/dbfacade"
	"nino/internal/domain"
)

// Responses is the read-through cache over nino_response, minus content
// blobs: Info is cached, content is fetched on demand so the cache never
// holds large script/asset bodies it rarely needs.
type Responses struct {
	mu      sync.RWMutex
	entries map[string]domain.ResponseInfo
	db      *dbfacade.Facade
}

func NewResponses(db *dbfacade.Facade) *Responses {
	return &Responses{entries: make(map[string]domain.ResponseInfo), db: db}
}

func (r *Responses) Reload(ctx context.Context) error {
	rows, err := r.db.Query(ctx, `SELECT response_name, response_mime_type, execute_flag, transpile_flag FROM nino_response`)
	if err != nil {
		return fmt.Errorf("contentcache: reload responses: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]domain.ResponseInfo)
	for rows.Next() {
		var name string
		var info domain.ResponseInfo
		if err := rows.Scan(&name, &info.Mime, &info.Execute, &info.Transpile); err != nil {
			return fmt.Errorf("contentcache: scan response row: %w", err)
		}
		fresh[name] = info
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("contentcache: iterate responses: %w", err)
	}

	r.mu.Lock()
	r.entries = fresh
	r.mu.Unlock()
	return nil
}

func (r *Responses) InvalidateOne(ctx context.Context, name string) error {
	rows, err := r.db.QueryOpt(ctx, `SELECT response_mime_type, execute_flag, transpile_flag FROM nino_response WHERE response_name = $1`, name)
	if err != nil {
		return fmt.Errorf("contentcache: invalidate response %q: %w", name, err)
	}
	if rows == nil {
		r.mu.Lock()
		delete(r.entries, name)
		r.mu.Unlock()
		return nil
	}
	defer rows.Close()
	var info domain.ResponseInfo
	if err := rows.Scan(&info.Mime, &info.Execute, &info.Transpile); err != nil {
		return fmt.Errorf("contentcache: scan response %q: %w", name, err)
	}
	r.mu.Lock()
	r.entries[name] = info
	r.mu.Unlock()
	return nil
}

func (r *Responses) Lookup(name string) (domain.ResponseInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.entries[name]
	return info, ok
}

// Content fetches the content blob for name, preferring the transpiled
// `javascript` column when the response's transpile flag is set.
func (r *Responses) Content(ctx context.Context, name string) (string, error) {
	info, ok := r.Lookup(name)
	column := "response_content"
	if ok && info.Transpile {
		column = "javascript"
	}
	rows, err := r.db.QueryOpt(ctx, fmt.Sprintf("SELECT %s FROM nino_response WHERE response_name = $1", column), name)
	if err != nil {
		return "", fmt.Errorf("contentcache: fetch content %q: %w", name, err)
	}
	if rows == nil {
		return "", fmt.Errorf("contentcache: response %q not found", name)
	}
	defer rows.Close()
	var content string
	if err := rows.Scan(&content); err != nil {
		return "", fmt.Errorf("contentcache: scan content %q: %w", name, err)
	}
	return content, nil
}
