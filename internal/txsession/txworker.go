package txsession

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nino/internal/domain"
	"nino/internal/logging"
	"nino/internal/observability"
)

// txWorkerHandle is what the session worker holds for one open alias: a
// channel to the goroutine that actually owns the pgx.Tx. The transaction
// object itself never crosses this boundary, only requests and responses.
type txWorkerHandle struct {
	alias string
	reqCh chan txRequest
}

type txReqKind int

const (
	txQuery txReqKind = iota
	txUpsert
	txFinish
)

type txRequest struct {
	kind   txReqKind
	sql    string
	params []domain.QueryParam
	commit bool
	resp   chan txResponse
}

type txResponse struct {
	err      error
	result   domain.QueryResult
	affected int64
}

// spawnTxWorker starts the two-level loop described in §4.4: the outer
// loop opens a connection and begins a transaction, the inner loop
// consumes requests until a Finish request (commit or rollback) closes it,
// at which point the outer loop begins the next transaction on a fresh
// connection. An unsupported alias kind or a nil pool fails every request
// with a fixed error rather than refusing construction, matching the
// original's "accept the row, fail at the query" behavior.
func spawnTxWorker(ctx context.Context, pool *pgxpool.Pool, info domain.AliasInfo) *txWorkerHandle {
	h := &txWorkerHandle{alias: info.Alias, reqCh: make(chan txRequest)}
	if info.Unsupported() || pool == nil {
		go runUnsupportedWorker(h.reqCh, info)
		return h
	}
	go runTxWorker(ctx, pool, h.reqCh)
	return h
}

func runUnsupportedWorker(reqCh chan txRequest, info domain.AliasInfo) {
	err := fmt.Errorf("unsupported database kind: %s", info.Kind)
	for req := range reqCh {
		req.resp <- txResponse{err: err}
	}
}

// runTxWorker is the outer loop: it owns the connection lifecycle. Panics
// inside a single iteration are confined here: the transaction is rolled
// back, the op being handled gets an "alias disconnected" error, and the
// worker goes on to the next transaction rather than taking down the
// isolate.
func runTxWorker(ctx context.Context, pool *pgxpool.Pool, reqCh chan txRequest) {
	for {
		req, ok := <-reqCh
		if !ok {
			return
		}
		conn, err := pool.Acquire(ctx)
		if err != nil {
			req.resp <- txResponse{err: fmt.Errorf("txsession: acquire connection: %w", err)}
			continue
		}
		tx, err := conn.Begin(ctx)
		if err != nil {
			conn.Release()
			req.resp <- txResponse{err: fmt.Errorf("txsession: begin transaction: %w", err)}
			continue
		}
		closed := runTxInner(ctx, tx, req, reqCh)
		conn.Release()
		if closed {
			continue
		}
		return
	}
}

// runTxInner is the inner loop for one open transaction. The first request
// (already popped by the caller) is handled before entering the loop.
// Returns true if the worker should continue to the next outer iteration,
// false if the channel was closed and the worker should exit entirely.
func runTxInner(ctx context.Context, tx pgx.Tx, first txRequest, reqCh chan txRequest) (continueOuter bool) {
	req := first
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Error("transaction worker panicked, rolling back", "panic", r)
			_ = tx.Rollback(ctx)
			select {
			case req.resp <- txResponse{err: fmt.Errorf("txsession: alias disconnected: %v", r)}:
			default:
			}
			continueOuter = true
		}
	}()

	for {
		switch req.kind {
		case txQuery:
			result, err := runQuery(ctx, tx, req.sql, req.params)
			req.resp <- txResponse{result: result, err: err}
		case txUpsert:
			affected, err := runUpsert(ctx, tx, req.sql, req.params)
			req.resp <- txResponse{affected: affected, err: err}
		case txFinish:
			var err error
			if req.commit {
				err = tx.Commit(ctx)
			} else {
				err = tx.Rollback(ctx)
			}
			req.resp <- txResponse{err: err}
			return true
		}

		next, ok := <-reqCh
		if !ok {
			_ = tx.Rollback(ctx)
			return false
		}
		req = next
	}
}

func runQuery(ctx context.Context, tx pgx.Tx, sql string, params []domain.QueryParam) (domain.QueryResult, error) {
	args := paramsToArgs(params)
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return domain.QueryResult{}, fmt.Errorf("txsession: query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := domain.QueryResult{
		RowNames: make([]string, len(fields)),
		RowTypes: make([]string, len(fields)),
	}
	for i, f := range fields {
		result.RowNames[i] = f.Name
		result.RowTypes[i] = fmt.Sprintf("oid:%d", f.DataTypeOID)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return domain.QueryResult{}, fmt.Errorf("txsession: scan row: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = domain.StringifyCell(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return domain.QueryResult{}, fmt.Errorf("txsession: iterate rows: %w", err)
	}
	return result, nil
}

func runUpsert(ctx context.Context, tx pgx.Tx, sql string, params []domain.QueryParam) (int64, error) {
	args := paramsToArgs(params)
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("txsession: exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

func paramsToArgs(params []domain.QueryParam) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.SQLValue()
	}
	return args
}

func (h *txWorkerHandle) query(ctx context.Context, sql string, params []domain.QueryParam) (domain.QueryResult, error) {
	ctx, span := observability.StartSpan(ctx, "tx.query", observability.AttrAlias.String(h.alias))
	defer span.End()
	resp := h.send(ctx, txRequest{kind: txQuery, sql: sql, params: params})
	if resp.err != nil {
		observability.SetSpanError(span, resp.err)
	} else {
		observability.SetSpanOK(span)
	}
	return resp.result, resp.err
}

func (h *txWorkerHandle) upsert(ctx context.Context, sql string, params []domain.QueryParam) (int64, error) {
	ctx, span := observability.StartSpan(ctx, "tx.upsert", observability.AttrAlias.String(h.alias))
	defer span.End()
	resp := h.send(ctx, txRequest{kind: txUpsert, sql: sql, params: params})
	if resp.err != nil {
		observability.SetSpanError(span, resp.err)
	} else {
		observability.SetSpanOK(span)
	}
	return resp.affected, resp.err
}

func (h *txWorkerHandle) finish(ctx context.Context, commit bool) error {
	resp := h.send(ctx, txRequest{kind: txFinish, commit: commit})
	return resp.err
}

func (h *txWorkerHandle) send(ctx context.Context, req txRequest) txResponse {
	req.resp = make(chan txResponse, 1)
	select {
	case h.reqCh <- req:
	case <-ctx.Done():
		return txResponse{err: fmt.Errorf("txsession: alias disconnected: %w", ctx.Err())}
	}
	select {
	case resp := <-req.resp:
		return resp
	case <-ctx.Done():
		return txResponse{err: fmt.Errorf("txsession: alias disconnected: %w", ctx.Err())}
	}
}

func (h *txWorkerHandle) close() {
	close(h.reqCh)
}
