package trail

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/mathx"
)

var ErrOccupied = errors.New("trail: cell already occupied")

// ReleaseFunc restores the world state a segment covered. It is called exactly once
// for every segment that leaves the store, whatever the removal path.
type ReleaseFunc func(Segment)

// Store is the registry of live segments. It is not safe for concurrent use; the
// owning engine runs it on the world goroutine.
type Store struct {
	lifetime time.Duration
	release  ReleaseFunc

	segments   map[CellKey]Segment
	index      map[CellKey]IndexEntry
	partitions map[PartitionKey]map[CellKey]struct{}
	owners     map[uuid.UUID]*fifo
}

func NewStore(lifetime time.Duration, release ReleaseFunc) *Store {
	return &Store{
		lifetime:   lifetime,
		release:    release,
		segments:   map[CellKey]Segment{},
		index:      map[CellKey]IndexEntry{},
		partitions: map[PartitionKey]map[CellKey]struct{}{},
		owners:     map[uuid.UUID]*fifo{},
	}
}

func (s *Store) SetLifetime(d time.Duration) { s.lifetime = d }
func (s *Store) Lifetime() time.Duration     { return s.lifetime }

// SetRelease replaces the restore hook; nil disables restoration.
func (s *Store) SetRelease(fn ReleaseFunc) { s.release = fn }

// Put registers seg. It fails with ErrOccupied if the key or any of the cells the
// segment covers already belongs to a live segment.
func (s *Store) Put(seg Segment) error {
	if _, ok := s.segments[seg.Key]; ok {
		return ErrOccupied
	}
	cells := seg.Cells()
	for _, c := range cells {
		if _, ok := s.index[c]; ok {
			return ErrOccupied
		}
	}

	s.segments[seg.Key] = seg
	entry := IndexEntry{Key: seg.Key, PlacedAt: seg.PlacedAt, Owner: seg.Owner}
	for _, c := range cells {
		s.index[c] = entry
	}
	pk := seg.Key.Partition()
	set := s.partitions[pk]
	if set == nil {
		set = map[CellKey]struct{}{}
		s.partitions[pk] = set
	}
	set[seg.Key] = struct{}{}

	q := s.owners[seg.Owner]
	if q == nil {
		q = &fifo{}
		s.owners[seg.Owner] = q
	}
	q.push(fifoEntry{Key: seg.Key, PlacedAt: seg.PlacedAt})
	return nil
}

func (s *Store) Get(key CellKey) (Segment, bool) {
	seg, ok := s.segments[key]
	return seg, ok
}

func (s *Store) Has(key CellKey) bool {
	_, ok := s.segments[key]
	return ok
}

// Lookup returns the index entry for any cell a live segment occupies.
func (s *Store) Lookup(cell CellKey) (IndexEntry, bool) {
	e, ok := s.index[cell]
	return e, ok
}

func (s *Store) Len() int { return len(s.segments) }

func (s *Store) IndexLen() int { return len(s.index) }

func (s *Store) PartitionLen(pk PartitionKey) int { return len(s.partitions[pk]) }

// OwnerLen counts the live segments referenced by owner's FIFO.
func (s *Store) OwnerLen(owner uuid.UUID) int { return len(s.OwnerKeys(owner)) }

// OwnerKeys lists owner's live segment keys in placement order, skipping stale
// FIFO references.
func (s *Store) OwnerKeys(owner uuid.UUID) []CellKey {
	q := s.owners[owner]
	if q == nil {
		return nil
	}
	var out []CellKey
	for _, e := range q.entries() {
		if s.live(owner, e) {
			out = append(out, e.Key)
		}
	}
	return out
}

func (s *Store) live(owner uuid.UUID, e fifoEntry) bool {
	seg, ok := s.segments[e.Key]
	return ok && seg.Owner == owner && seg.PlacedAt.Equal(e.PlacedAt)
}

// EvictExpired removes at most limit of owner's segments whose age has reached the
// store lifetime, oldest first. Stale FIFO entries are discarded without counting
// toward limit. It returns the number of segments removed.
func (s *Store) EvictExpired(owner uuid.UUID, now time.Time, limit int) int {
	q := s.owners[owner]
	if q == nil {
		return 0
	}
	removed := 0
	for removed < limit {
		e, ok := q.peek()
		if !ok {
			break
		}
		if !s.live(owner, e) {
			q.pop()
			continue
		}
		if now.Sub(e.PlacedAt) < s.lifetime {
			break
		}
		q.pop()
		s.remove(e.Key)
		removed++
	}
	if q.len() == 0 {
		delete(s.owners, owner)
	}
	return removed
}

// ClearOwner drains owner's FIFO completely, restoring every live segment.
func (s *Store) ClearOwner(owner uuid.UUID) int {
	q := s.owners[owner]
	if q == nil {
		return 0
	}
	removed := 0
	for {
		e, ok := q.peek()
		if !ok {
			break
		}
		q.pop()
		if s.live(owner, e) {
			s.remove(e.Key)
			removed++
		}
	}
	delete(s.owners, owner)
	return removed
}

// OnPartitionUnload removes every segment registered under pk regardless of owner.
// Owner FIFOs keep their references; later pops skip them.
func (s *Store) OnPartitionUnload(pk PartitionKey) int {
	set := s.partitions[pk]
	if len(set) == 0 {
		return 0
	}
	keys := make([]CellKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sortKeys(keys)
	for _, k := range keys {
		s.remove(k)
	}
	return len(keys)
}

// Remove drops a single segment; used to roll back a placement the renderer could
// not complete.
func (s *Store) Remove(key CellKey) bool {
	if _, ok := s.segments[key]; !ok {
		return false
	}
	s.remove(key)
	return true
}

// RestoreAll removes every live segment and forgets all owner FIFOs.
func (s *Store) RestoreAll() int {
	keys := make([]CellKey, 0, len(s.segments))
	for k := range s.segments {
		keys = append(keys, k)
	}
	sortKeys(keys)
	for _, k := range keys {
		s.remove(k)
	}
	s.owners = map[uuid.UUID]*fifo{}
	return len(keys)
}

// Within returns the live segments of world whose base cell lies within radius of
// center, nearest first. Only partitions overlapping the radius are visited.
func (s *Store) Within(world uuid.UUID, center r3.Vec, radius float64) []Segment {
	if radius <= 0 {
		return nil
	}
	minCX := mathx.FloorDiv(int(math.Floor(center.X-radius)), PartitionSize)
	maxCX := mathx.FloorDiv(int(math.Floor(center.X+radius)), PartitionSize)
	minCZ := mathx.FloorDiv(int(math.Floor(center.Z-radius)), PartitionSize)
	maxCZ := mathx.FloorDiv(int(math.Floor(center.Z+radius)), PartitionSize)

	r2 := radius * radius
	var out []Segment
	for cx := minCX; cx <= maxCX; cx++ {
		for cz := minCZ; cz <= maxCZ; cz++ {
			for k := range s.partitions[PartitionKey{World: world, CX: cx, CZ: cz}] {
				if k.Pos.DistSq(center) <= r2 {
					out = append(out, s.segments[k])
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Key.Pos.DistSq(center), out[j].Key.Pos.DistSq(center)
		if di != dj {
			return di < dj
		}
		return lessKey(out[i].Key, out[j].Key)
	})
	return out
}

func (s *Store) remove(key CellKey) {
	seg, ok := s.segments[key]
	if !ok {
		return
	}
	delete(s.segments, key)
	for _, c := range seg.Cells() {
		if e, ok := s.index[c]; ok && e.Key == key {
			delete(s.index, c)
		}
	}
	pk := key.Partition()
	if set := s.partitions[pk]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(s.partitions, pk)
		}
	}
	if s.release != nil {
		s.release(seg)
	}
}

func sortKeys(keys []CellKey) {
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
}

func lessKey(a, b CellKey) bool {
	if a.World != b.World {
		return a.World.String() < b.World.String()
	}
	if a.Pos.X != b.Pos.X {
		return a.Pos.X < b.Pos.X
	}
	if a.Pos.Z != b.Pos.Z {
		return a.Pos.Z < b.Pos.Z
	}
	return a.Pos.Y < b.Pos.Y
}
