// Package domain holds the value types shared across the DB facade,
// notification bus, transaction session, and script runtime. None of these
// types own a goroutine or a connection; they are the payloads carried over
// the channels that connect the components that do.
package domain

import "net/http"

// TaskKind distinguishes the two shapes a Task can take.
type TaskKind int

const (
	// TaskServlet carries an HTTP-originated request bound for a script.
	TaskServlet TaskKind = iota
	// TaskMessage carries an opaque notification payload fanned out to
	// every isolate.
	TaskMessage
)

// Task is the tagged union an isolate receives from begin_task. Exactly one
// of the Servlet or Message fields is populated, selected by Kind.
type Task struct {
	Kind    TaskKind
	Servlet *ServletTask
	Message *MessageTask
}

// ServletTask is an HTTP request routed to a named script. The connection
// handle (ResponseWriter + flush signal) is owned by whichever isolate pops
// this task, exclusively, until EndTask fires.
type ServletTask struct {
	ScriptName string
	Request    *RequestInfo
	Body       []byte
	UserID     string
	Conn       *ServletConn
}

// MessageTask carries an in-band notification payload, delivered to every
// isolate as a non-servlet task.
type MessageTask struct {
	Text string
}

// ServletConn is the owned HTTP connection handle a ServletTask carries.
// Done is closed exactly once, either by the script's end_task op or by the
// isolate's failure-writer, whichever releases the connection first.
type ServletConn struct {
	W    http.ResponseWriter
	R    *http.Request
	Done chan struct{}
}

// Release signals that the connection has been released. Calling it more
// than once is a programming error the caller must avoid; it is not
// defended against here because the task-ownership invariant is enforced
// by the isolate pool, not by this type.
func (c *ServletConn) Release() {
	close(c.Done)
}
