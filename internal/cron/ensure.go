package cron

import "context"

// Submitter is the subset of *Scheduler that coordinators depend on.
type Submitter interface {
	Submit(ctx context.Context, def Definition) (SubmitResult, error)
	Cancel(ctx context.Context, key Key) (bool, error)
	Get(key Key) *Record
}

var _ Submitter = (*Scheduler)(nil)

// Ensure installs a periodic def with KeepExisting semantics: a live record
// with the same schedule is left alone, so restarts do not push the next
// fire back. A live record whose schedule differs is moved to def's
// schedule with UpdateSchedule.
func Ensure(ctx context.Context, s Submitter, def Definition) (SubmitResult, error) {
	def.Policy = KeepExisting
	if rec := s.Get(def.Key); rec.active() && !sameSchedule(rec.Definition, def) {
		def.Policy = UpdateSchedule
	}
	return s.Submit(ctx, def)
}

func sameSchedule(a, b Definition) bool {
	return a.Kind == b.Kind && a.Interval == b.Interval && a.Cron == b.Cron
}
