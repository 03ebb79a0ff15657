// Package scheduler provides a queue of deferred tasks that is polled rather
// than fired by runtime timers. The owner asks which tasks are due by a given
// time and re-validates each task's condition itself.
package scheduler

import (
	"container/heap"
	"time"
)

// Kind distinguishes what a task is for.
type Kind string

// KindRoomEviction is a deferred check that deletes a room if it is still empty.
const KindRoomEviction Kind = "room_eviction"

// Task is one scheduled entry.
type Task struct {
	Kind Kind
	Key  string
	Due  time.Time

	seq uint64
}

type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Due.Equal(h[j].Due) {
		return h[i].seq < h[j].seq
	}
	return h[i].Due.Before(h[j].Due)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// Queue orders tasks by due time, ties broken by scheduling order. It is not
// safe for concurrent use.
type Queue struct {
	tasks taskHeap
	seq   uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Schedule adds a task. Scheduling the same key twice keeps both entries;
// there is no cancellation, callers check the condition when a task comes due.
func (q *Queue) Schedule(kind Kind, key string, due time.Time) {
	q.seq++
	heap.Push(&q.tasks, Task{Kind: kind, Key: key, Due: due, seq: q.seq})
}

// Due removes and returns every task whose due time is at or before now, in
// due order.
func (q *Queue) Due(now time.Time) []Task {
	var out []Task
	for len(q.tasks) > 0 && !q.tasks[0].Due.After(now) {
		out = append(out, heap.Pop(&q.tasks).(Task))
	}
	return out
}

// Next returns the earliest pending task without removing it.
func (q *Queue) Next() (Task, bool) {
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	return q.tasks[0], true
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int { return len(q.tasks) }
