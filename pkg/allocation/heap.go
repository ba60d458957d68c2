package allocation

import "container/heap"

// comparator reports whether a should be popped before b.
type comparator func(a, b *entry) bool

// entryHeap is a container/heap.Interface over *entry pointers, used to
// replace optimize()'s repeated full re-sort with an O(log n) extract-max.
type entryHeap struct {
	items []*entry
	less  comparator
}

func newMaxHeap(entries []entry, less comparator) *entryHeap {
	h := &entryHeap{less: less, items: make([]*entry, len(entries))}
	for i := range entries {
		h.items[i] = &entries[i]
	}
	heap.Init(h)
	return h
}

func (h *entryHeap) Len() int            { return len(h.items) }
func (h *entryHeap) Less(i, j int) bool  { return h.less(h.items[i], h.items[j]) }
func (h *entryHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *entryHeap) Push(x interface{})  { h.items = append(h.items, x.(*entry)) }
func (h *entryHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}

// Peek returns the top element without removing it.
func (h *entryHeap) Peek() *entry { return h.items[0] }

// byRemainWorkload orders by greatest remainWorkload, ties broken by
// input order (spec.md §4.1 step 2).
func byRemainWorkload(a, b *entry) bool {
	if a.remainWorkload != b.remainWorkload {
		return a.remainWorkload > b.remainWorkload
	}
	return a.originalIndex < b.originalIndex
}

// byPredFreq orders by greatest predFreq, ties broken by input order
// (spec.md §4.1 step 4).
func byPredFreq(a, b *entry) bool {
	if a.predFreq != b.predFreq {
		return a.predFreq > b.predFreq
	}
	return a.originalIndex < b.originalIndex
}
