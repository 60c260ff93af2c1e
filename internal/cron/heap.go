package cron

import (
	"container/heap"
	"time"
)

// queueEntry is one armed fire time. Entries are never updated in place;
// a newer generation pushes a fresh entry and stale ones are skipped on pop.
type queueEntry struct {
	key        Key
	at         time.Time
	generation int64
}

type fireQueue []queueEntry

func (q fireQueue) Len() int { return len(q) }

func (q fireQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].key < q[j].key
	}
	return q[i].at.Before(q[j].at)
}

func (q fireQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *fireQueue) Push(x any) { *q = append(*q, x.(queueEntry)) }

func (q *fireQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (q *fireQueue) push(e queueEntry) { heap.Push(q, e) }

func (q *fireQueue) peek() (queueEntry, bool) {
	if len(*q) == 0 {
		return queueEntry{}, false
	}
	return (*q)[0], true
}

// popDue removes and returns every entry whose time is not after now.
func (q *fireQueue) popDue(now time.Time) []queueEntry {
	var due []queueEntry
	for len(*q) > 0 && !(*q)[0].at.After(now) {
		due = append(due, heap.Pop(q).(queueEntry))
	}
	return due
}

// remove drops every entry for key.
func (q *fireQueue) remove(key Key) {
	old := *q
	kept := old[:0]
	for _, e := range old {
		if e.key != key {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(old) {
		return
	}
	*q = kept
	heap.Init(q)
}
