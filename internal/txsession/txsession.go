// Package txsession is the transaction session (C4): a per-isolate worker
// that owns zero or more open database transactions keyed by alias,
// multiplexed over request/response channels so synchronous-looking host
// calls from a script drive asynchronous database work on a separate
// goroutine.
//
// Grounded in shape on the teacher's per-resource connection-pool gateway
// (internal/dbaccess/gateway.go): a directory of named resources, each
// lazily backed by its own pool, guarded by a map the owning goroutine
// alone mutates. nino narrows that to the session/transaction split
// described in the spec: one Session goroutine per isolate, one
// TransactionWorker goroutine per open alias.
package txsession

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"nino/internal/dbfacade"
	"nino/internal/domain"
	"nino/internal/logging"
)

// Session is the handle an isolate holds: a sender to its dedicated
// session worker goroutine. It owns no state itself beyond the channel;
// all session state lives inside the worker.
type Session struct {
	reqCh chan sessionRequest
}

type sessionReqKind int

const (
	reqReloadAliases sessionReqKind = iota
	reqCreateTransaction
	reqQuery
	reqUpsert
	reqCloseAll
)

type sessionRequest struct {
	kind       sessionReqKind
	alias      string
	sql        string
	params     []domain.QueryParam
	commit     bool
	resp       chan sessionResponse
}

type sessionResponse struct {
	err      error
	alias    string
	result   domain.QueryResult
	affected int64
}

// Start spawns the session worker for one isolate, which starts the
// transaction worker for _main (the transaction itself begins with that
// worker's first request). mainDSN is the bootstrap connection string; db is
// used to read the alias directory (nino_database lives on the same
// database as _main).
func Start(ctx context.Context, db *dbfacade.Facade, mainDSN string) *Session {
	s := &Session{reqCh: make(chan sessionRequest)}
	go runSessionWorker(ctx, db, mainDSN, s.reqCh)
	return s
}

func (s *Session) do(ctx context.Context, req sessionRequest) sessionResponse {
	req.resp = make(chan sessionResponse, 1)
	select {
	case s.reqCh <- req:
	case <-ctx.Done():
		return sessionResponse{err: ctx.Err()}
	}
	select {
	case resp := <-req.resp:
		return resp
	case <-ctx.Done():
		return sessionResponse{err: ctx.Err()}
	}
}

// ReloadAliases forces a re-scan of the alias directory, per
// reload_database_aliases.
func (s *Session) ReloadAliases(ctx context.Context) error {
	resp := s.do(ctx, sessionRequest{kind: reqReloadAliases})
	return resp.err
}

// CreateTransaction ensures alias has an open TransactionWorker, handling
// disambiguation when the same given name is requested twice in one
// session, and returns the canonical alias name.
func (s *Session) CreateTransaction(ctx context.Context, alias string) (string, error) {
	resp := s.do(ctx, sessionRequest{kind: reqCreateTransaction, alias: alias})
	return resp.alias, resp.err
}

// Query runs a SELECT-shaped statement on alias's open transaction.
func (s *Session) Query(ctx context.Context, alias, sql string, params []domain.QueryParam) (domain.QueryResult, error) {
	resp := s.do(ctx, sessionRequest{kind: reqQuery, alias: alias, sql: sql, params: params})
	return resp.result, resp.err
}

// Upsert runs a mutating statement on alias's open transaction, returning
// the affected row count.
func (s *Session) Upsert(ctx context.Context, alias, sql string, params []domain.QueryParam) (int64, error) {
	resp := s.do(ctx, sessionRequest{kind: reqUpsert, alias: alias, sql: sql, params: params})
	return resp.affected, resp.err
}

// CloseAll commits or rolls back every open transaction and resets the
// session to _main-only, per tx_end.
func (s *Session) CloseAll(ctx context.Context, commit bool) error {
	resp := s.do(ctx, sessionRequest{kind: reqCloseAll, commit: commit})
	return resp.err
}

// Close tears down the session worker and every transaction worker it
// owns; the channel closing is itself the termination signal.
func (s *Session) Close() {
	close(s.reqCh)
}

// sessionState is the worker's private state, touched only from its own
// goroutine.
type sessionState struct {
	db          *dbfacade.Facade
	mainDSN     string
	aliasInfo   map[string]domain.AliasInfo
	aliasesUsed map[string]string
	pool        map[string]*txWorkerHandle
	pools       map[string]*pgxpool.Pool // per-connection-string pgx pools, shared across aliases that share a DSN
	dirty       bool
}

func runSessionWorker(ctx context.Context, db *dbfacade.Facade, mainDSN string, reqCh chan sessionRequest) {
	st := &sessionState{
		db:          db,
		mainDSN:     mainDSN,
		aliasInfo:   map[string]domain.AliasInfo{domain.MainAlias: {Alias: domain.MainAlias, Kind: domain.AliasPostgres, ConnectionString: mainDSN}},
		aliasesUsed: make(map[string]string),
		pool:        make(map[string]*txWorkerHandle),
		pools:       make(map[string]*pgxpool.Pool),
	}
	st.pool[domain.MainAlias] = st.spawnTx(ctx, domain.MainAlias, st.aliasInfo[domain.MainAlias])
	if err := st.reloadAliases(ctx); err != nil {
		logging.Op().Error("initial alias reload failed", "error", err)
	}

	for req := range reqCh {
		st.handle(ctx, req)
	}
	st.closeAll(ctx, true)
}

func (st *sessionState) handle(ctx context.Context, req sessionRequest) {
	switch req.kind {
	case reqReloadAliases:
		err := st.reloadAliases(ctx)
		req.resp <- sessionResponse{err: err}
	case reqCreateTransaction:
		canonical, err := st.createTransaction(ctx, req.alias)
		req.resp <- sessionResponse{alias: canonical, err: err}
	case reqQuery:
		result, err := st.routeQuery(ctx, req.alias, req.sql, req.params)
		req.resp <- sessionResponse{result: result, err: err}
	case reqUpsert:
		affected, err := st.routeUpsert(ctx, req.alias, req.sql, req.params)
		req.resp <- sessionResponse{affected: affected, err: err}
	case reqCloseAll:
		err := st.closeAll(ctx, req.commit)
		req.resp <- sessionResponse{err: err}
	}
}

func (st *sessionState) reloadAliases(ctx context.Context) error {
	rows, err := st.db.Query(ctx, "SELECT db_alias, db_type, db_connection_string FROM nino_database")
	if err != nil {
		return fmt.Errorf("txsession: reload aliases: %w", err)
	}
	defer rows.Close()

	fresh := map[string]domain.AliasInfo{domain.MainAlias: st.aliasInfo[domain.MainAlias]}
	for rows.Next() {
		var a domain.AliasInfo
		var kind string
		if err := rows.Scan(&a.Alias, &kind, &a.ConnectionString); err != nil {
			return fmt.Errorf("txsession: scan alias row: %w", err)
		}
		a.Kind = domain.AliasKind(kind)
		fresh[a.Alias] = a
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("txsession: iterate aliases: %w", err)
	}

	st.aliasInfo = fresh
	st.dirty = true
	return nil
}

// createTransaction implements §4.4's CreateTransaction(alias) behavior:
// disambiguate repeated given names, spawn a worker lazily, return the
// canonical name.
func (st *sessionState) createTransaction(ctx context.Context, alias string) (string, error) {
	canonical, taken := st.aliasesUsed[alias]
	if !taken {
		canonical = alias
	} else {
		n := 1
		for {
			candidate := fmt.Sprintf("%s_%d", alias, n)
			if _, used := st.pool[candidate]; !used {
				canonical = candidate
				break
			}
			n++
		}
	}
	st.aliasesUsed[alias] = canonical

	if _, ok := st.pool[canonical]; !ok {
		info, known := st.aliasInfo[canonical]
		if !known {
			info, known = st.aliasInfo[alias]
			if !known {
				return "", fmt.Errorf("txsession: unknown alias %q", alias)
			}
		}
		st.pool[canonical] = st.spawnTx(ctx, canonical, info)
	}
	return canonical, nil
}

func (st *sessionState) routeQuery(ctx context.Context, alias, sql string, params []domain.QueryParam) (domain.QueryResult, error) {
	handle, ok := st.pool[alias]
	if !ok {
		return domain.QueryResult{}, fmt.Errorf("txsession: no open transaction for alias %q", alias)
	}
	return handle.query(ctx, sql, params)
}

func (st *sessionState) routeUpsert(ctx context.Context, alias, sql string, params []domain.QueryParam) (int64, error) {
	handle, ok := st.pool[alias]
	if !ok {
		return 0, fmt.Errorf("txsession: no open transaction for alias %q", alias)
	}
	return handle.upsert(ctx, sql, params)
}

// closeAll implements §4.4's CloseAll: commit/rollback every worker, then
// either clear the pool entirely (if dirty) and reopen _main, or drop
// workers whose alias left the directory.
func (st *sessionState) closeAll(ctx context.Context, commit bool) error {
	var firstErr error
	for alias, handle := range st.pool {
		if err := handle.finish(ctx, commit); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("txsession: close alias %q: %w", alias, err)
		}
	}

	if st.dirty {
		for _, handle := range st.pool {
			handle.close()
		}
		st.pool = make(map[string]*txWorkerHandle)
		st.pool[domain.MainAlias] = st.spawnTx(ctx, domain.MainAlias, st.aliasInfo[domain.MainAlias])
		st.dirty = false
	} else {
		for alias, handle := range st.pool {
			if alias == domain.MainAlias {
				continue
			}
			if _, stillKnown := st.aliasInfo[alias]; !stillKnown {
				handle.close()
				delete(st.pool, alias)
			}
		}
	}
	st.aliasesUsed = make(map[string]string)
	return firstErr
}

// pooledConn returns (creating if necessary) the shared pgxpool for info's
// connection string. Aliases pointing at the same DSN share one pool.
func (st *sessionState) pooledConn(ctx context.Context, info domain.AliasInfo) *pgxpool.Pool {
	if info.ConnectionString == st.mainDSN {
		return st.db.Pool()
	}
	if p, ok := st.pools[info.ConnectionString]; ok {
		return p
	}
	p, err := pgxpool.New(ctx, info.ConnectionString)
	if err != nil {
		logging.Op().Error("failed to open pool for alias", "connection_string_set", info.ConnectionString != "", "error", err)
		return nil
	}
	st.pools[info.ConnectionString] = p
	return p
}

// spawnTx resolves info's pool and starts a TransactionWorker for alias.
func (st *sessionState) spawnTx(ctx context.Context, alias string, info domain.AliasInfo) *txWorkerHandle {
	pool := st.pooledConn(ctx, info)
	return spawnTxWorker(ctx, pool, info)
}
