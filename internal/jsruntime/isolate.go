package jsruntime

import (
	"context"
	"errors"
	"net/http"

	"github.com/dop251/goja"

	"nino/internal/domain"
	"nino/internal/logging"
	"nino/internal/logsink"
	"nino/internal/metrics"
	"nino/internal/notifybus"
	"nino/internal/observability"
	"nino/internal/txsession"
)

// Isolate is one single-threaded script instance: a signed 16-bit id, a
// goja.Runtime, a notification publisher handle, the currently-held task
// (at most one), and the pending-broadcast buffer accumulated during the
// current task. Every field here is touched only from the isolate's own
// goroutine; the invariant task != nil holds from the point a task is
// popped until its response is released.
type Isolate struct {
	ID int16

	queue       TaskSource
	loader      *Loader
	bus         *notifybus.Bus
	sink        logsink.Sink
	jwtSecret   string
	programName string

	vm         *goja.Runtime
	session    *txsession.Session
	current    domain.Task
	broadcasts []string
	response   *responseBuilder
}

// responseBuilder accumulates what set_response_* ops write before
// set_response_send_text/buf flushes it atomically with end_task.
type responseBuilder struct {
	status  int
	headers http.Header
}

func newResponseBuilder() *responseBuilder {
	return &responseBuilder{status: http.StatusOK, headers: make(http.Header)}
}

var (
	errNoHandler            = errors.New("script has no default handle()")
	errHandlerDidNotRespond = errors.New("handler returned without ending the task")
)

// New builds one isolate. It starts no session worker; the isolate's
// session is started separately and handed to Run.
func New(id int16, queue TaskSource, loader *Loader, bus *notifybus.Bus, sink logsink.Sink, jwtSecret, programName string) *Isolate {
	return &Isolate{
		ID:          id,
		queue:       queue,
		loader:      loader,
		bus:         bus,
		sink:        sink,
		jwtSecret:   jwtSecret,
		programName: programName,
	}
}

// Run drives the isolate forever: begin_task, dispatch, repeat, until the
// queue closes or ctx is cancelled. A panic or script error rebuilds the
// goja.Runtime (fresh bindings, fresh global state) rather than taking the
// whole isolate down, so one bad script cannot corrupt the pool.
//
// Every isolate holds its own notification-bus subscription, separate from
// the shared task queue: a servlet task is consumed by exactly one isolate,
// but a notification payload is a message task delivered to all of them, so
// it cannot travel through the MPMC queue alongside servlet work.
func (iso *Isolate) Run(ctx context.Context, session *txsession.Session) {
	iso.session = session
	iso.rebuild()

	var messages <-chan notifybus.Message
	if iso.bus != nil {
		messages = iso.bus.Subscribe(ctx)
	}

	for {
		select {
		case task, ok := <-iso.queue.Chan():
			if !ok {
				return
			}
			iso.runTask(ctx, task)
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			iso.runTask(ctx, domain.Task{Kind: domain.TaskMessage, Message: &domain.MessageTask{Text: msg.Text}})
		case <-ctx.Done():
			return
		}
	}
}

func (iso *Isolate) rebuild() {
	vm := goja.New()
	vm.SetFieldNameMapper(snakeCaseMapper{})
	vm.Set("ops", &Ops{iso: iso})
	vm.Set("console", map[string]func(goja.FunctionCall) goja.Value{
		"log": func(call goja.FunctionCall) goja.Value {
			text := ""
			for i, a := range call.Arguments {
				if i > 0 {
					text += " "
				}
				text += a.String()
			}
			iso.log(context.Background(), text)
			return goja.Undefined()
		},
	})
	iso.vm = vm
}

func (iso *Isolate) runTask(ctx context.Context, task domain.Task) {
	kind := "message"
	if task.Kind == domain.TaskServlet {
		kind = "servlet"
	}
	outcome := "ok"

	metrics.IsolatesBusy.Inc()
	defer func() {
		if r := recover(); r != nil {
			outcome = "error"
			logging.Op().Error("isolate panicked, rebuilding", "isolate", iso.ID, "panic", r)
			iso.rebuild()
		}
		metrics.IsolatesBusy.Dec()
		metrics.TasksProcessedTotal.WithLabelValues(kind, outcome).Inc()
	}()

	iso.current = task
	iso.broadcasts = nil
	iso.response = newResponseBuilder()

	switch task.Kind {
	case domain.TaskServlet:
		iso.runServlet(ctx, task.Servlet)
	case domain.TaskMessage:
		iso.runMessage(ctx, task.Message)
	}
}

// runServlet continues the request's server span (started by
// Dispatcher.ServeHTTP and carried through t.Conn.R's context) with
// a child span scoping just the script's execution, so a trace backend can
// tell HTTP decode time apart from isolate time.
func (iso *Isolate) runServlet(ctx context.Context, t *domain.ServletTask) {
	spanCtx, span := observability.StartSpan(t.Conn.R.Context(), "servlet "+t.ScriptName,
		observability.AttrScriptName.String(t.ScriptName),
		observability.AttrIsolateID.Int64(int64(iso.ID)),
	)
	defer span.End()
	log := logging.OpWithTrace(observability.GetTraceID(spanCtx), observability.GetSpanID(spanCtx))

	source, _, err := iso.loader.Load(ctx, iso.loader.Resolve(t.ScriptName))
	if err != nil {
		log.Error("module load failed", "script", t.ScriptName, "error", err)
		observability.SetSpanError(span, err)
		iso.failServlet(t, http.StatusInternalServerError)
		return
	}

	if _, err := iso.vm.RunString(source); err != nil {
		log.Error("script execution error", "script", t.ScriptName, "error", err)
		observability.SetSpanError(span, err)
		iso.failServlet(t, http.StatusInternalServerError)
		iso.rebuild()
		return
	}

	handler, ok := goja.AssertFunction(iso.vm.Get("handle"))
	if !ok {
		log.Error("script has no default handle()", "script", t.ScriptName)
		observability.SetSpanError(span, errNoHandler)
		iso.failServlet(t, http.StatusInternalServerError)
		return
	}
	if _, err := handler(goja.Undefined()); err != nil {
		log.Error("handler threw", "script", t.ScriptName, "error", err)
		observability.SetSpanError(span, err)
		iso.failServlet(t, http.StatusInternalServerError)
		iso.rebuild()
		return
	}

	// Script is expected to call end_task; if it didn't, release here so
	// the connection is never leaked.
	select {
	case <-t.Conn.Done:
		observability.SetSpanOK(span)
	default:
		observability.SetSpanError(span, errHandlerDidNotRespond)
		iso.failServlet(t, http.StatusInternalServerError)
	}
}

func (iso *Isolate) failServlet(t *domain.ServletTask, status int) {
	select {
	case <-t.Conn.Done:
		return
	default:
	}
	t.Conn.W.WriteHeader(status)
	t.Conn.Release()
}

func (iso *Isolate) runMessage(_ context.Context, _ *domain.MessageTask) {
	handler, ok := goja.AssertFunction(iso.vm.Get("onMessage"))
	if !ok {
		return
	}
	if _, err := handler(goja.Undefined()); err != nil {
		logging.Op().Warn("message handler threw", "isolate", iso.ID, "error", err)
		iso.rebuild()
	}
}

func (iso *Isolate) log(ctx context.Context, text string) {
	if iso.sink == nil {
		return
	}
	_ = iso.sink.Enqueue(ctx, logsink.Entry{LogMessage: text})
}
