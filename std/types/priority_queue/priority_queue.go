package priority_queue

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

// Item is a handle to a queued value.
type Item[V any, P constraints.Ordered] struct {
	object   V
	priority P
	order    uint64
	index    int
}

type wrapper[V any, P constraints.Ordered] []*Item[V, P]

// Queue is a min-priority queue. Items of equal priority leave in the
// order they were pushed.
type Queue[V any, P constraints.Ordered] struct {
	pq    wrapper[V, P]
	order uint64
}

func (pq *wrapper[V, P]) Len() int {
	return len(*pq)
}

func (pq *wrapper[V, P]) Less(i, j int) bool {
	a, b := (*pq)[i], (*pq)[j]
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.order < b.order
}

func (pq *wrapper[V, P]) Swap(i, j int) {
	(*pq)[i], (*pq)[j] = (*pq)[j], (*pq)[i]
	(*pq)[i].index = i
	(*pq)[j].index = j
}

func (pq *wrapper[V, P]) Push(x any) {
	item := x.(*Item[V, P])
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *wrapper[V, P]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// Len returns the number of queued items.
func (pq *Queue[V, P]) Len() int {
	return pq.pq.Len()
}

// Push queues value and returns its handle.
func (pq *Queue[V, P]) Push(value V, priority P) *Item[V, P] {
	pq.order++
	ret := &Item[V, P]{
		object:   value,
		priority: priority,
		order:    pq.order,
	}
	heap.Push(&pq.pq, ret)
	return ret
}

// Peek returns the minimum value without removing it.
func (pq *Queue[V, P]) Peek() V {
	return pq.pq[0].object
}

// PeekPriority returns the minimum priority.
func (pq *Queue[V, P]) PeekPriority() P {
	return pq.pq[0].priority
}

// Pop removes and returns the minimum value.
func (pq *Queue[V, P]) Pop() V {
	return heap.Pop(&pq.pq).(*Item[V, P]).object
}

// Remove takes item out of the queue. It returns false if the item was
// already popped or removed.
func (pq *Queue[V, P]) Remove(item *Item[V, P]) bool {
	if item.index < 0 || item.index >= len(pq.pq) || pq.pq[item.index] != item {
		return false
	}
	heap.Remove(&pq.pq, item.index)
	return true
}

// Value returns the value of the item.
func (item *Item[V, P]) Value() V {
	return item.object
}

// Priority returns the priority of the item.
func (item *Item[V, P]) Priority() P {
	return item.priority
}

// New creates an empty queue. The zero value is also ready to use.
func New[V any, P constraints.Ordered]() Queue[V, P] {
	return Queue[V, P]{pq: wrapper[V, P]{}}
}
