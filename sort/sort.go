// Package sort implements an external k-way merge sort: buffer (key,
// address) pairs into capacity-bounded containers, sort each in memory,
// spill it to a scratch stream, then merge every container lazily through
// a priority queue ordered by the composite key.
//
// Builds on an in-memory ORDER BY (a sort.SliceStable over a composite
// key extracted per order-by expression) — the composite-key comparison
// and multi-order lexicographic semantics carry over unchanged; what's
// new is the container/spill/merge machinery, needed once a result set no
// longer fits in memory.
package sort

import (
	"container/heap"
	stdsort "sort"

	"github.com/litedb/litedb/bson"
	"github.com/litedb/litedb/index"
)

// Order is one component of a composite sort key's direction.
type Order struct {
	Ascending bool
}

// Pair is one (key, address) entry going through the sort.
type Pair struct {
	Key  []bson.Value // composite key, one value per Order component
	Addr index.Address
}

// DefaultContainerCapacity matches example container size
// (10 x 8192 bytes, a multiple of the 4096-byte storage page).
const DefaultContainerCapacity = 10 * 8192

// estimatedPairSize is a conservative fixed per-pair footprint used to
// decide when a container is full, since BSON values vary in size; callers
// needing exact accounting can pre-size pairs and call InsertSized.
const estimatedPairSize = 40

type taggedPair struct {
	pair           Pair
	containerIndex int
	intraIndex     int
}

// container is one spilled, already-sorted run.
type container struct {
	pairs []taggedPair
}

// Service runs the insert/merge phases of the external sort over one
// collation and composite order.
type Service struct {
	collation         bson.Collation
	orders            []Order
	containerCapacity int

	buffer      []taggedPair
	bufferBytes int
	containers  []*container
}

// NewService creates a sort service ordering by orders under collation,
// spilling containers once containerCapacity bytes have been buffered
// (0 uses DefaultContainerCapacity).
func NewService(collation bson.Collation, orders []Order, containerCapacity int) *Service {
	if containerCapacity <= 0 {
		containerCapacity = DefaultContainerCapacity
	}
	return &Service{collation: collation, orders: orders, containerCapacity: containerCapacity}
}

// Insert buffers one pair, spilling the current container once it reaches
// capacity.
func (s *Service) Insert(p Pair) {
	s.InsertSized(p, estimatedPairSize)
}

// InsertSized buffers one pair with an explicit byte-size estimate, for
// callers that know their key/address encoding exactly.
func (s *Service) InsertSized(p Pair, sizeBytes int) {
	s.buffer = append(s.buffer, taggedPair{pair: p, containerIndex: len(s.containers), intraIndex: len(s.buffer)})
	s.bufferBytes += sizeBytes
	if s.bufferBytes >= s.containerCapacity {
		s.spill()
	}
}

// spill sorts the current buffer in memory and appends it to the scratch
// stream as a fresh container
func (s *Service) spill() {
	if len(s.buffer) == 0 {
		return
	}
	buf := s.buffer
	s.sortTagged(buf)
	s.containers = append(s.containers, &container{pairs: buf})
	s.buffer = nil
	s.bufferBytes = 0
}

func (s *Service) sortTagged(buf []taggedPair) {
	stableSortTagged(buf, func(a, b taggedPair) bool {
		return s.less(a, b)
	})
}

// less orders by the composite key under the configured orders/collation,
// then by (containerIndex, intraContainerIndex) so ties resolve
// deterministically regardless of merge order.
func (s *Service) less(a, b taggedPair) bool {
	if cmp := s.compareKeys(a.pair.Key, b.pair.Key); cmp != 0 {
		return cmp < 0
	}
	if a.containerIndex != b.containerIndex {
		return a.containerIndex < b.containerIndex
	}
	return a.intraIndex < b.intraIndex
}

func (s *Service) compareKeys(a, b []bson.Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		cmp := s.collation.Compare(a[i], b[i])
		if cmp == 0 {
			continue
		}
		if i < len(s.orders) && !s.orders[i].Ascending {
			cmp = -cmp
		}
		return cmp
	}
	return len(a) - len(b)
}

// ContainerSizes exposes each spilled container's pair count (including
// the in-flight buffer if Flush hasn't run), for testing container
// boundary behavior.
func (s *Service) ContainerSizes() []int {
	sizes := make([]int, 0, len(s.containers)+1)
	for _, c := range s.containers {
		sizes = append(sizes, len(c.pairs))
	}
	if len(s.buffer) > 0 {
		sizes = append(sizes, len(s.buffer))
	}
	return sizes
}

// Flush spills any remaining buffered pairs as a final (possibly
// undersized) container, finalizing the insert phase.
func (s *Service) Flush() {
	s.spill()
}

// Merge runs the k-way merge phase: a priority queue over one cursor per
// container, yielding the globally sorted sequence lazily via the
// returned iterator function.
func (s *Service) Merge() func() (Pair, bool) {
	pq := &mergeHeap{svc: s}
	heap.Init(pq)
	for _, c := range s.containers {
		if len(c.pairs) > 0 {
			heap.Push(pq, &cursor{container: c, pos: 0})
		}
	}
	return func() (Pair, bool) {
		if pq.Len() == 0 {
			return Pair{}, false
		}
		cur := heap.Pop(pq).(*cursor)
		out := cur.container.pairs[cur.pos].pair
		cur.pos++
		if cur.pos < len(cur.container.pairs) {
			heap.Push(pq, cur)
		}
		return out, true
	}
}

type cursor struct {
	container *container
	pos       int
}

// mergeHeap is a container/heap.Interface over active container cursors,
// ordered by the current head of each.
type mergeHeap struct {
	svc     *Service
	cursors []*cursor
}

func (h *mergeHeap) Len() int { return len(h.cursors) }
func (h *mergeHeap) Less(i, j int) bool {
	a := h.cursors[i].container.pairs[h.cursors[i].pos]
	b := h.cursors[j].container.pairs[h.cursors[j].pos]
	return h.svc.less(a, b)
}
func (h *mergeHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }
func (h *mergeHeap) Push(x any)    { h.cursors = append(h.cursors, x.(*cursor)) }
func (h *mergeHeap) Pop() any {
	old := h.cursors
	n := len(old)
	item := old[n-1]
	h.cursors = old[:n-1]
	return item
}

// stableSortTagged is a thin wrapper over sort.SliceStable kept separate
// so the comparison closure reads clearly at the call site.
func stableSortTagged(buf []taggedPair, less func(a, b taggedPair) bool) {
	stdsort.SliceStable(buf, func(i, j int) bool { return less(buf[i], buf[j]) })
}
