package cycle

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"lightcycle.ai/internal/sim/tuning"
	"lightcycle.ai/internal/sim/voxel"
)

var (
	gridWorld = uuid.NewSHA1(uuid.NameSpaceOID, []byte("The_Grid"))
	farWorld  = uuid.NewSHA1(uuid.NameSpaceOID, []byte("Overworld"))

	riderA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	riderB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

var errUnreadable = errors.New("unreadable")

type sentCell struct {
	Viewer uuid.UUID
	Pos    voxel.Pos
	Cell   voxel.Cell
}

type played struct {
	Effect Effect
	Color  voxel.Color
}

// fakeEnv is an in-memory world: stone at y<=0, air above, unless overridden.
type fakeEnv struct {
	cells       map[uuid.UUID]map[voxel.Pos]voxel.Cell
	unreadable  map[voxel.Pos]bool
	replaceable map[voxel.Material]bool

	owners   map[uuid.UUID]*OwnerState
	vehicles map[uuid.UUID]*VehicleState
	panicOn  map[uuid.UUID]bool
	glow     map[uuid.UUID]bool
	nextVeh  int

	overrides []sentCell
	reals     []sentCell
	effects   []played
	damage    map[uuid.UUID]float64
	killed    map[uuid.UUID]bool
	notes     map[uuid.UUID][]string
	prefs     map[uuid.UUID]voxel.Color
	events    []Event
}

func newFakeEnv() *fakeEnv {
	rep, _ := tuning.Defaults().ReplaceableMaterials()
	return &fakeEnv{
		cells:       map[uuid.UUID]map[voxel.Pos]voxel.Cell{},
		unreadable:  map[voxel.Pos]bool{},
		replaceable: rep,
		owners:      map[uuid.UUID]*OwnerState{},
		vehicles:    map[uuid.UUID]*VehicleState{},
		panicOn:     map[uuid.UUID]bool{},
		glow:        map[uuid.UUID]bool{},
		damage:      map[uuid.UUID]float64{},
		killed:      map[uuid.UUID]bool{},
		notes:       map[uuid.UUID][]string{},
		prefs:       map[uuid.UUID]voxel.Color{},
	}
}

func (f *fakeEnv) env() Env {
	return Env{Cells: f, Mobiles: f, Viewers: f, Effects: f, Prefs: f, Journal: f}
}

func defaultCell(p voxel.Pos) voxel.Cell {
	if p.Y <= 0 {
		return voxel.Cell{Material: voxel.Stone}
	}
	return voxel.AirCell()
}

func (f *fakeEnv) Cell(world uuid.UUID, p voxel.Pos) (voxel.Cell, error) {
	if f.unreadable[p] {
		return voxel.Cell{}, errUnreadable
	}
	if c, ok := f.cells[world][p]; ok {
		return c, nil
	}
	return defaultCell(p), nil
}

func (f *fakeEnv) SetCell(world uuid.UUID, p voxel.Pos, c voxel.Cell) error {
	if f.unreadable[p] {
		return errUnreadable
	}
	m := f.cells[world]
	if m == nil {
		m = map[voxel.Pos]voxel.Cell{}
		f.cells[world] = m
	}
	if c == defaultCell(p) {
		delete(m, p)
		return nil
	}
	m[p] = c
	return nil
}

func (f *fakeEnv) Replaceable(c voxel.Cell) bool { return f.replaceable[c.Material] }
func (f *fakeEnv) Solid(c voxel.Cell) bool       { return c.Material.Solid() }

// snapshot copies the explicitly set cells of world.
func (f *fakeEnv) snapshot(world uuid.UUID) map[voxel.Pos]voxel.Cell {
	out := map[voxel.Pos]voxel.Cell{}
	for p, c := range f.cells[world] {
		out[p] = c
	}
	return out
}

func (f *fakeEnv) addOwner(id uuid.UUID, world uuid.UUID, name string, pos r3.Vec) *OwnerState {
	o := &OwnerState{ID: id, Online: true, World: world, WorldName: name, Pos: pos}
	f.owners[id] = o
	return o
}

func (f *fakeEnv) Owner(id uuid.UUID) (OwnerState, bool) {
	o, ok := f.owners[id]
	if !ok {
		return OwnerState{}, false
	}
	return *o, true
}

func (f *fakeEnv) Vehicle(id uuid.UUID) (VehicleState, bool) {
	if f.panicOn[id] {
		panic("vehicle state corrupted")
	}
	v, ok := f.vehicles[id]
	if !ok {
		return VehicleState{}, false
	}
	return *v, true
}

func (f *fakeEnv) SpawnVehicle(owner uuid.UUID, color voxel.Color) (uuid.UUID, error) {
	o, ok := f.owners[owner]
	if !ok {
		return uuid.Nil, errors.New("no owner")
	}
	f.nextVeh++
	id := uuid.NewSHA1(owner, []byte{byte(f.nextVeh)})
	f.vehicles[id] = &VehicleState{
		ID:         id,
		World:      o.World,
		WorldName:  o.WorldName,
		Pos:        o.Pos,
		Alive:      true,
		Passengers: []uuid.UUID{owner},
	}
	return id, nil
}

func (f *fakeEnv) RemoveVehicle(id uuid.UUID) { delete(f.vehicles, id) }

func (f *fakeEnv) SetGlow(vehicle uuid.UUID, _ voxel.Color, on bool) { f.glow[vehicle] = on }

// drive sets the vehicle's position and per-game-tick velocity; owner follows.
func (f *fakeEnv) drive(owner uuid.UUID, s Session, pos, vel r3.Vec) {
	v := f.vehicles[s.Vehicle]
	v.Pos, v.Velocity = pos, vel
	f.owners[owner].Pos = pos
}

func (f *fakeEnv) ViewersNear(world uuid.UUID, center r3.Vec, radius float64) []uuid.UUID {
	var out []uuid.UUID
	for id, o := range f.owners {
		if o.Online && o.World == world && r3.Norm(r3.Sub(o.Pos, center)) <= radius {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

func (f *fakeEnv) ViewerPos(viewer uuid.UUID) (uuid.UUID, r3.Vec, bool) {
	o, ok := f.owners[viewer]
	if !ok {
		return uuid.Nil, r3.Vec{}, false
	}
	return o.World, o.Pos, true
}

func (f *fakeEnv) SendOverride(viewer, _ uuid.UUID, p voxel.Pos, c voxel.Cell) {
	f.overrides = append(f.overrides, sentCell{Viewer: viewer, Pos: p, Cell: c})
}

func (f *fakeEnv) SendReal(viewer, _ uuid.UUID, p voxel.Pos, c voxel.Cell) {
	f.reals = append(f.reals, sentCell{Viewer: viewer, Pos: p, Cell: c})
}

func (f *fakeEnv) Play(_ uuid.UUID, _ r3.Vec, effect Effect, color voxel.Color) {
	f.effects = append(f.effects, played{Effect: effect, Color: color})
}

func (f *fakeEnv) Damage(owner uuid.UUID, amount float64, _ uuid.UUID) { f.damage[owner] += amount }
func (f *fakeEnv) Kill(owner uuid.UUID)                                { f.killed[owner] = true }
func (f *fakeEnv) Notify(owner uuid.UUID, text string) {
	f.notes[owner] = append(f.notes[owner], text)
}

func (f *fakeEnv) Color(owner uuid.UUID) (voxel.Color, bool) {
	c, ok := f.prefs[owner]
	return c, ok
}
func (f *fakeEnv) SetColor(owner uuid.UUID, c voxel.Color) { f.prefs[owner] = c }

func (f *fakeEnv) Record(ev Event) { f.events = append(f.events, ev) }

func (f *fakeEnv) played(effect Effect) int {
	n := 0
	for _, p := range f.effects {
		if p.Effect == effect {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, mutate func(*tuning.Tuning)) (*Engine, *fakeEnv) {
	t.Helper()
	tun := tuning.Defaults()
	if mutate != nil {
		mutate(&tun)
	}
	f := newFakeEnv()
	e, err := New(f.env(), tun, zerolog.Nop())
	require.NoError(t, err)
	return e, f
}

// spawnAt puts owner on the grid at pos and spawns a red cycle.
func spawnAt(t *testing.T, e *Engine, f *fakeEnv, owner uuid.UUID, pos r3.Vec, now time.Time) Session {
	t.Helper()
	f.addOwner(owner, gridWorld, "The_Grid", pos)
	require.NoError(t, e.Spawn(owner, voxel.Red, now))
	s, ok := e.Session(owner)
	require.True(t, ok)
	return s
}
