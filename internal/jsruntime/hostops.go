package jsruntime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nino/internal/auth"
	"nino/internal/domain"
)

// Ops is the stable surface scripts call, bound into goja as the global
// `ops` object with its method names rewritten to snake_case by
// snakeCaseMapper. Every method here runs on the isolate's own goroutine;
// none of them may be called concurrently with another op on the same
// isolate, which goja's single-threaded execution model guarantees for
// free.
type Ops struct {
	iso *Isolate
}

// EndTask flushes the pending response and closes the connection. It is a
// no-op on message tasks or a task whose connection is already released.
func (o *Ops) EndTask() {
	t := o.iso.current.Servlet
	if t == nil {
		return
	}
	select {
	case <-t.Conn.Done:
		return
	default:
	}
	rb := o.iso.response
	for k, vs := range rb.headers {
		for _, v := range vs {
			t.Conn.W.Header().Add(k, v)
		}
	}
	t.Conn.W.WriteHeader(rb.status)
	t.Conn.Release()
}

// GetRequest returns the parsed request; it fails if the current task is
// not a servlet.
func (o *Ops) GetRequest() (domain.ParsedRequest, error) {
	t := o.iso.current.Servlet
	if t == nil {
		return domain.ParsedRequest{}, fmt.Errorf("jsruntime: get_request called outside a servlet task")
	}
	q := t.Conn.R.URL.Query()
	var postForm map[string][]string
	if isFormEncoded(t.Body) {
		if vals, err := url.ParseQuery(string(t.Body)); err == nil {
			postForm = vals
		}
	}
	return domain.ParsedRequest{
		Method:   t.Conn.R.Method,
		Host:     t.Conn.R.Host,
		Path:     t.Conn.R.URL.Path,
		Query:    q,
		PostForm: postForm,
		UserID:   t.UserID,
	}, nil
}

// isFormEncoded implements §9(d): decode as urlencoded when and only when
// the raw body contains no whitespace byte, a byte scan rather than a
// content-type sniff.
func isFormEncoded(body []byte) bool {
	for _, b := range body {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			return false
		}
	}
	return len(body) > 0
}

// GetRequestBody returns the decoded body as a string.
func (o *Ops) GetRequestBody() string {
	t := o.iso.current.Servlet
	if t == nil {
		return ""
	}
	return string(t.Body)
}

// SetResponseStatus sets the pending response's status code.
func (o *Ops) SetResponseStatus(status int) {
	o.iso.response.status = status
}

// SetResponseHeader appends a header to the pending response.
func (o *Ops) SetResponseHeader(key, value string) {
	o.iso.response.headers.Add(key, value)
}

// SetResponseSendText writes text as the body and closes the stream,
// atomically with end_task.
func (o *Ops) SetResponseSendText(text string) {
	o.writeAndClose([]byte(text))
}

// SetResponseSendBuf writes raw bytes as the body and closes the stream.
func (o *Ops) SetResponseSendBuf(buf []byte) {
	o.writeAndClose(buf)
}

func (o *Ops) writeAndClose(body []byte) {
	t := o.iso.current.Servlet
	if t == nil {
		return
	}
	select {
	case <-t.Conn.Done:
		return
	default:
	}
	rb := o.iso.response
	for k, vs := range rb.headers {
		for _, v := range vs {
			t.Conn.W.Header().Add(k, v)
		}
	}
	t.Conn.W.WriteHeader(rb.status)
	_, _ = t.Conn.W.Write(body)
	t.Conn.Release()
}

// Sleep pauses the isolate's goroutine for ms milliseconds.
func (o *Ops) Sleep(ms int) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// BroadcastMessage enqueues text to the pending-broadcasts buffer.
func (o *Ops) BroadcastMessage(text string) {
	o.iso.broadcasts = append(o.iso.broadcasts, text)
}

// ABroadcastMessage drains the pending-broadcasts buffer and publishes
// each through the notification bus when commit is true; on false, the
// buffer is discarded. Scripts call this op directly and it does not check
// whether tx_end has run; a tx_end that returns an error empties the
// buffer, so a call after a failed commit publishes nothing.
func (o *Ops) ABroadcastMessage(commit bool) {
	msgs := o.iso.broadcasts
	o.iso.broadcasts = nil
	if !commit || o.iso.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, m := range msgs {
		if err := o.iso.bus.Publish(ctx, m); err != nil {
			return
		}
	}
}

// GetInvalidationMessage returns the current Message task's text, or "" if
// the current task is a servlet.
func (o *Ops) GetInvalidationMessage() string {
	if o.iso.current.Message == nil {
		return ""
	}
	return o.iso.current.Message.Text
}

// ReloadDatabaseAliases forces the session to re-scan the alias directory.
func (o *Ops) ReloadDatabaseAliases() error {
	return o.iso.session.ReloadAliases(context.Background())
}

// TxGetConnectionName ensures a transaction exists for alias and returns
// its canonical name.
func (o *Ops) TxGetConnectionName(alias string) (string, error) {
	return o.iso.session.CreateTransaction(context.Background(), alias)
}

// TxExecuteQuery runs sql[0] with params sql[1:], typed by types[], on
// alias's open transaction.
func (o *Ops) TxExecuteQuery(alias string, sql []string, types []int) (domain.QueryResult, error) {
	stmt, params, err := decodeStatement(sql, types)
	if err != nil {
		return domain.QueryResult{}, err
	}
	return o.iso.session.Query(context.Background(), alias, stmt, params)
}

// TxExecuteUpsert runs a mutating statement the same way TxExecuteQuery
// parses its arguments, returning the affected row count.
func (o *Ops) TxExecuteUpsert(alias string, sql []string, types []int) (int64, error) {
	stmt, params, err := decodeStatement(sql, types)
	if err != nil {
		return 0, err
	}
	return o.iso.session.Upsert(context.Background(), alias, stmt, params)
}

func decodeStatement(sql []string, types []int) (string, []domain.QueryParam, error) {
	if len(sql) == 0 {
		return "", nil, fmt.Errorf("jsruntime: tx_execute_query called with no statement")
	}
	stmt := sql[0]
	args := sql[1:]
	if len(args) != len(types) {
		return "", nil, fmt.Errorf("jsruntime: tx_execute_query: %d args but %d types", len(args), len(types))
	}
	params := make([]domain.QueryParam, len(args))
	for i, raw := range args {
		kind := domain.DecodeParamKind(types[i])
		params[i] = decodeParam(kind, raw)
	}
	return stmt, params, nil
}

func decodeParam(kind domain.ParamKind, raw string) domain.QueryParam {
	switch kind {
	case domain.ParamNull:
		return domain.QueryParam{Kind: domain.ParamNull}
	case domain.ParamBool:
		return domain.QueryParam{Kind: domain.ParamBool, Bool: raw == "true" || raw == "1"}
	case domain.ParamNumber:
		var n int64
		_, _ = fmt.Sscanf(raw, "%d", &n)
		return domain.QueryParam{Kind: domain.ParamNumber, Number: n}
	case domain.ParamDate:
		ms := int64(0)
		_, _ = fmt.Sscanf(raw, "%d", &ms)
		return domain.QueryParam{Kind: domain.ParamDate, Date: time.UnixMilli(ms).UTC()}
	default:
		return domain.QueryParam{Kind: domain.ParamString, String: raw}
	}
}

// TxEnd closes the session's transactions and resets to _main-only. When
// closing fails, the pending-broadcast buffer is discarded.
func (o *Ops) TxEnd(commit bool) error {
	err := o.iso.session.CloseAll(context.Background(), commit)
	if err != nil {
		o.iso.broadcasts = nil
	}
	return err
}

// Fetch performs an outbound HTTP request with a client-side timeout.
func (o *Ops) Fetch(reqURL string, timeoutMs int, method string, headers map[string]string, body string) (FetchResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), reqURL, strings.NewReader(body))
	if err != nil {
		return FetchResult{}, fmt.Errorf("jsruntime: fetch: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("jsruntime: fetch: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, fmt.Errorf("jsruntime: fetch: read body: %w", err)
	}

	return FetchResult{Status: resp.StatusCode, Body: string(data), Headers: flattenHeader(resp.Header)}, nil
}

// FetchResult is what Fetch hands back to script code.
type FetchResult struct {
	Status  int
	Body    string
	Headers map[string]string
}

// hopByHopHeaders are stripped when piping a fetched response back to the
// inbound connection, per the outbound-fetch header-passthrough behavior.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if hopByHopHeaders[k] || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}

// SetResponseFromFetch pipes a fetched response back to the inbound
// connection, forwarding headers minus hop-by-hop ones.
func (o *Ops) SetResponseFromFetch(result FetchResult) {
	o.iso.response.status = result.Status
	for k, v := range result.Headers {
		o.iso.response.headers.Set(k, v)
	}
	o.writeAndClose([]byte(result.Body))
}

// JwtForUser mints a JWT for user using the process-local secret.
func (o *Ops) JwtForUser(user string) (string, error) {
	return auth.SignJWT(o.iso.jwtSecret, o.iso.programName, user)
}

// PasswordHash hashes a password with bcrypt.
func (o *Ops) PasswordHash(password string) (string, error) {
	return auth.HashPassword(password)
}

// PasswordVerify checks a password against a bcrypt hash.
func (o *Ops) PasswordVerify(hash, password string) bool {
	return auth.VerifyPassword(hash, password)
}

// Log writes text to the log table through the bounded batcher.
func (o *Ops) Log(text string) {
	o.iso.log(context.Background(), text)
}
