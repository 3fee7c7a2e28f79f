package trail

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/voxel"
)

var (
	world  = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	other  = uuid.MustParse("00000000-0000-0000-0000-0000000000bb")
	riderA = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	riderB = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	t0     = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

func key(x, y, z int) CellKey { return CellKey{World: world, Pos: voxel.Pos{X: x, Y: y, Z: z}} }

func seg(k CellKey, owner uuid.UUID, at time.Time) Segment {
	return Segment{
		Key:       k,
		PlacedAt:  at,
		Owner:     owner,
		Color:     voxel.Red,
		OrigBase:  voxel.AirCell(),
		OrigAbove: voxel.AirCell(),
	}
}

type releases struct{ got []CellKey }

func (r *releases) hook(s Segment) { r.got = append(r.got, s.Key) }

// checkAgreement asserts that every live segment is in its owner's FIFO exactly once
// and that the index holds exactly the occupied cells.
func checkAgreement(t *testing.T, s *Store) {
	t.Helper()
	seen := map[CellKey]int{}
	for owner := range s.owners {
		for _, k := range s.OwnerKeys(owner) {
			seen[k]++
			assert.Equal(t, owner, s.segments[k].Owner)
		}
	}
	cells := 0
	for k, sg := range s.segments {
		assert.Equal(t, 1, seen[k], "segment %v in FIFO", k)
		for _, c := range sg.Cells() {
			e, ok := s.index[c]
			require.True(t, ok)
			assert.Equal(t, k, e.Key)
			cells++
		}
	}
	assert.Equal(t, len(s.segments), len(seen))
	assert.Equal(t, cells, len(s.index))
}

func TestPutRejectsOccupied(t *testing.T) {
	s := NewStore(10*time.Second, nil)
	require.NoError(t, s.Put(seg(key(0, 5, 0), riderA, t0)))

	assert.ErrorIs(t, s.Put(seg(key(0, 5, 0), riderB, t0)), ErrOccupied)
	// base+1 of the first segment
	assert.ErrorIs(t, s.Put(seg(key(0, 6, 0), riderB, t0)), ErrOccupied)
	// new segment whose upper cell lands on the first base
	assert.ErrorIs(t, s.Put(seg(key(0, 4, 0), riderB, t0)), ErrOccupied)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.IndexLen())
	checkAgreement(t, s)
}

func TestGlowCellIndexed(t *testing.T) {
	s := NewStore(10*time.Second, nil)
	sg := seg(key(3, 5, 3), riderA, t0)
	sg.Glow = true
	require.NoError(t, s.Put(sg))

	e, ok := s.Lookup(key(3, 7, 3))
	require.True(t, ok)
	assert.Equal(t, key(3, 5, 3), e.Key)
	assert.Equal(t, 3, s.IndexLen())

	s.ClearOwner(riderA)
	assert.Zero(t, s.IndexLen())
}

func TestPlaceEvictRoundTrip(t *testing.T) {
	rel := &releases{}
	s := NewStore(10*time.Second, rel.hook)
	k := key(1, 5, 1)
	require.NoError(t, s.Put(seg(k, riderA, t0)))

	assert.Zero(t, s.EvictExpired(riderA, t0.Add(9*time.Second), 2))
	assert.True(t, s.Has(k))

	assert.Equal(t, 1, s.EvictExpired(riderA, t0.Add(10*time.Second), 2))
	assert.False(t, s.Has(k))
	_, ok := s.Lookup(k)
	assert.False(t, ok)
	_, ok = s.Lookup(k.Up(1))
	assert.False(t, ok)
	assert.Zero(t, s.PartitionLen(k.Partition()))
	assert.Equal(t, []CellKey{k}, rel.got)
}

func TestEvictBatchLimitAndOrder(t *testing.T) {
	rel := &releases{}
	s := NewStore(time.Second, rel.hook)
	var keys []CellKey
	for i := 0; i < 5; i++ {
		k := key(i, 5, 0)
		keys = append(keys, k)
		require.NoError(t, s.Put(seg(k, riderA, t0.Add(time.Duration(i)*100*time.Millisecond))))
	}
	later := t0.Add(time.Minute)

	assert.Equal(t, 2, s.EvictExpired(riderA, later, 2))
	assert.Equal(t, keys[:2], rel.got)
	checkAgreement(t, s)

	assert.Equal(t, 2, s.EvictExpired(riderA, later, 2))
	assert.Equal(t, 1, s.EvictExpired(riderA, later, 2))
	assert.Equal(t, keys, rel.got)
	assert.Zero(t, s.Len())
}

func TestEvictStopsAtYoungSegment(t *testing.T) {
	s := NewStore(time.Second, nil)
	require.NoError(t, s.Put(seg(key(0, 5, 0), riderA, t0)))
	require.NoError(t, s.Put(seg(key(1, 5, 0), riderA, t0.Add(900*time.Millisecond))))

	assert.Equal(t, 1, s.EvictExpired(riderA, t0.Add(1500*time.Millisecond), 2))
	assert.Equal(t, []CellKey{key(1, 5, 0)}, s.OwnerKeys(riderA))
}

func TestClearOwnerIdempotent(t *testing.T) {
	rel := &releases{}
	s := NewStore(10*time.Second, rel.hook)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Put(seg(key(i, 5, 0), riderA, t0)))
	}
	require.NoError(t, s.Put(seg(key(0, 5, 9), riderB, t0)))

	assert.Equal(t, 4, s.ClearOwner(riderA))
	assert.Zero(t, s.ClearOwner(riderA))
	assert.Len(t, rel.got, 4)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []CellKey{key(0, 5, 9)}, s.OwnerKeys(riderB))
	checkAgreement(t, s)
}

func TestPartitionUnloadIsolation(t *testing.T) {
	rel := &releases{}
	s := NewStore(10*time.Second, rel.hook)
	in := []CellKey{key(1, 5, 1), key(15, 5, 15)}
	out := []CellKey{key(16, 5, 1), key(-1, 5, 1)}
	for _, k := range in {
		require.NoError(t, s.Put(seg(k, riderA, t0)))
	}
	for _, k := range out {
		require.NoError(t, s.Put(seg(k, riderB, t0)))
	}
	require.NoError(t, s.Put(seg(CellKey{World: other, Pos: voxel.Pos{X: 2, Y: 5, Z: 2}}, riderB, t0)))

	assert.Equal(t, 2, s.OnPartitionUnload(PartitionKey{World: world, CX: 0, CZ: 0}))
	assert.ElementsMatch(t, in, rel.got)
	for _, k := range out {
		assert.True(t, s.Has(k))
	}
	assert.Equal(t, 3, s.Len())

	// riderA's FIFO still holds stale references; they are skipped without counting.
	assert.Zero(t, s.OwnerLen(riderA))
	assert.Zero(t, s.EvictExpired(riderA, t0.Add(time.Hour), 2))
	assert.Len(t, rel.got, 2)
	checkAgreement(t, s)
}

func TestStaleReferenceAfterReplacement(t *testing.T) {
	s := NewStore(time.Second, nil)
	k := key(0, 5, 0)
	require.NoError(t, s.Put(seg(k, riderA, t0)))
	s.OnPartitionUnload(k.Partition())

	// riderB takes the same cell; riderA's stale entry must not evict it.
	require.NoError(t, s.Put(seg(k, riderB, t0.Add(time.Second))))
	assert.Zero(t, s.EvictExpired(riderA, t0.Add(time.Hour), 2))
	assert.Zero(t, s.ClearOwner(riderA))
	assert.True(t, s.Has(k))
}

func TestRemoveAndRestoreAll(t *testing.T) {
	rel := &releases{}
	s := NewStore(10*time.Second, rel.hook)
	require.NoError(t, s.Put(seg(key(0, 5, 0), riderA, t0)))
	require.NoError(t, s.Put(seg(key(1, 5, 0), riderB, t0)))

	assert.True(t, s.Remove(key(0, 5, 0)))
	assert.False(t, s.Remove(key(0, 5, 0)))
	assert.Equal(t, 1, s.RestoreAll())
	assert.Zero(t, s.Len())
	assert.Zero(t, s.IndexLen())
	assert.Len(t, rel.got, 2)
	assert.Nil(t, s.OwnerKeys(riderA))
}

func TestWithinSortedByDistance(t *testing.T) {
	s := NewStore(10*time.Second, nil)
	require.NoError(t, s.Put(seg(key(30, 5, 0), riderA, t0)))
	require.NoError(t, s.Put(seg(key(3, 5, 0), riderA, t0)))
	require.NoError(t, s.Put(seg(key(-20, 5, 0), riderA, t0)))
	require.NoError(t, s.Put(seg(key(100, 5, 0), riderA, t0)))

	got := s.Within(world, r3.Vec{X: 0, Y: 5, Z: 0}, 32)
	require.Len(t, got, 3)
	assert.Equal(t, key(3, 5, 0), got[0].Key)
	assert.Equal(t, key(-20, 5, 0), got[1].Key)
	assert.Equal(t, key(30, 5, 0), got[2].Key)

	assert.Empty(t, s.Within(other, r3.Vec{}, 32))
}

func TestFIFOCompaction(t *testing.T) {
	q := &fifo{}
	for i := 0; i < 200; i++ {
		q.push(fifoEntry{Key: key(i, 0, 0)})
	}
	for i := 0; i < 150; i++ {
		e, ok := q.peek()
		require.True(t, ok)
		assert.Equal(t, i, e.Key.Pos.X)
		q.pop()
	}
	assert.Equal(t, 50, q.len())
	e, _ := q.peek()
	assert.Equal(t, 150, e.Key.Pos.X)
}
