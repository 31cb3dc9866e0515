// Package jsruntime is the script execution fabric: the module loader
// (C5), the isolate pool (C6), and the host-op surface scripts call (C7).
//
// # Isolate model
//
// Each isolate owns one goroutine and one *goja.Runtime, never shared.
// State that would otherwise need synchronization — the current task, the
// pending-broadcast buffer, the transaction session handle — lives on the
// isolate struct and is touched only from its own goroutine. The only
// values that cross an isolate boundary are domain.Task (in, from the
// shared queue) and notifybus.Message (in, from the broadcast bus); both
// are plain data, never goja values.
//
// # Concurrency
//
// begin_task blocks the isolate's goroutine on the shared task channel —
// deliberately: an idle isolate has nothing else to do, and blocking beats
// a busy poll. Every other host op runs to completion synchronously on the
// same goroutine before control returns to the script; this trades true
// cooperative suspension (which goja does not give us for free without a
// promise/microtask bridge) for a simpler, easier-to-reason-about
// embedding, at the cost of one isolate being unavailable for the
// duration of an in-flight fetch or sleep. N is chosen with that tradeoff
// in mind.
//
// # Failure behaviour
//
// A panic recovered inside one isolate's goroutine rebuilds that isolate
// (fresh goja.Runtime, fresh bindings) and proceeds to the next task; it
// never propagates past the isolate's own goroutine. A script error
// (thrown exception, syntax error) is logged and treated the same way: the
// isolate is rebuilt so one bad script can't wedge the process.
package jsruntime

import "nino/internal/domain"

// TaskSource is the MPMC queue isolates pull from. Any isolate may
// consume any task; ordering across consumers is not preserved. Chan
// exposes the same stream as a channel so an isolate's Run loop can
// select on it alongside its own notification-bus subscription.
type TaskSource interface {
	Next(done <-chan struct{}) (domain.Task, bool)
	Chan() <-chan domain.Task
}
