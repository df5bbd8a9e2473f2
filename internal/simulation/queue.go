package simulation

import "container/heap"

// pending is a node waiting to be activated at time.
type pending struct {
	node  int
	time  float64
	index int
}

// pendingQueue is an indexed min-heap of pending activations that supports
// decrease-key through update.
type pendingQueue struct {
	items []*pending
	byID  map[int]*pending
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{byID: make(map[int]*pending)}
}

func (q *pendingQueue) Len() int { return len(q.items) }

func (q *pendingQueue) Less(i, j int) bool {
	if q.items[i].time == q.items[j].time {
		return q.items[i].node < q.items[j].node
	}
	return q.items[i].time < q.items[j].time
}

func (q *pendingQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *pendingQueue) Push(x any) {
	p := x.(*pending)
	p.index = len(q.items)
	q.items = append(q.items, p)
	q.byID[p.node] = p
}

func (q *pendingQueue) Pop() any {
	old := q.items
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	p.index = -1
	delete(q.byID, p.node)
	return p
}

// add queues node at t.
func (q *pendingQueue) add(node int, t float64) {
	heap.Push(q, &pending{node: node, time: t})
}

// get returns the pending time of node.
func (q *pendingQueue) get(node int) (float64, bool) {
	p, ok := q.byID[node]
	if !ok {
		return 0, false
	}
	return p.time, true
}

// update moves node to t, restoring heap order.
func (q *pendingQueue) update(node int, t float64) {
	p := q.byID[node]
	p.time = t
	heap.Fix(q, p.index)
}

// peek returns the earliest pending activation without removing it.
func (q *pendingQueue) peek() *pending {
	return q.items[0]
}

// next removes and returns the earliest pending activation.
func (q *pendingQueue) next() *pending {
	return heap.Pop(q).(*pending)
}
