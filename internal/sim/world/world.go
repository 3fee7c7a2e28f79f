package world

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lightcycle.ai/internal/sim/cycle"
	"lightcycle.ai/internal/sim/tuning"
	"lightcycle.ai/internal/sim/voxel"
)

// Options wires the optional collaborators of a World.
type Options struct {
	Logger  zerolog.Logger
	Prefs   cycle.Prefs
	Journal cycle.Journal
	// Reload produces fresh tuning for the RELOAD command; nil disables it.
	Reload func() tuning.Tuning
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// World is a single-threaded authoritative simulation hosting riders, their
// vehicles and the trail engine. All state must be accessed only from the
// world loop goroutine.
type World struct {
	cfg    WorldConfig
	log    zerolog.Logger
	tun    tuning.Tuning
	reload func() tuning.Tuning
	clock  func() time.Time

	tick  atomic.Uint64
	stats atomic.Pointer[Stats]

	realms      map[uuid.UUID]*realm
	realmByName map[string]*realm
	realmNames  []string

	riders   map[uuid.UUID]*Rider
	vehicles map[uuid.UUID]*Vehicle
	clients  map[uuid.UUID]*clientState

	nextVehicle uint64
	replaceable map[voxel.Material]bool
	deaths      []uuid.UUID

	engine *cycle.Engine

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan uuid.UUID
	stop  chan struct{}
	done  chan struct{}

	// reloaded carries tuning read off the loop goroutine; at most one read is in flight.
	reloaded  chan reloadResult
	reloading bool

	stopOnce sync.Once
	doneOnce sync.Once
}

type reloadResult struct {
	owner uuid.UUID
	tun   tuning.Tuning
}

func New(cfg WorldConfig, tun tuning.Tuning, opts Options) (*World, error) {
	cfg.applyDefaults()
	w := &World{
		cfg:         cfg,
		log:         opts.Logger.With().Str("component", "world").Logger(),
		reload:      opts.Reload,
		clock:       opts.Clock,
		realms:      map[uuid.UUID]*realm{},
		realmByName: map[string]*realm{},
		riders:      map[uuid.UUID]*Rider{},
		vehicles:    map[uuid.UUID]*Vehicle{},
		clients:     map[uuid.UUID]*clientState{},
		inbox:       make(chan ActionEnvelope, 1024),
		join:        make(chan JoinRequest, 64),
		leave:       make(chan uuid.UUID, 64),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		reloaded:    make(chan reloadResult, 1),
	}
	if w.clock == nil {
		w.clock = time.Now
	}
	for _, rc := range cfg.Realms {
		key := strings.ToLower(rc.Name)
		if rc.Name == "" {
			return nil, fmt.Errorf("realm with empty name")
		}
		if _, dup := w.realmByName[key]; dup {
			return nil, fmt.Errorf("duplicate realm %q", rc.Name)
		}
		r := newRealm(rc)
		w.realms[r.ID] = r
		w.realmByName[key] = r
		w.realmNames = append(w.realmNames, r.Name)
	}
	if _, ok := w.realmByName[strings.ToLower(cfg.DefaultRealm)]; !ok {
		return nil, fmt.Errorf("default realm %q not hosted", cfg.DefaultRealm)
	}
	w.applyTuning(tun)

	env := cycle.Env{Cells: w, Mobiles: w, Viewers: w, Effects: w}
	if opts.Prefs != nil {
		env.Prefs = opts.Prefs
	}
	if opts.Journal != nil {
		env.Journal = opts.Journal
	}
	eng, err := cycle.New(env, tun, opts.Logger.With().Str("component", "engine").Logger())
	if err != nil {
		return nil, fmt.Errorf("trail engine: %w", err)
	}
	w.engine = eng
	return w, nil
}

func (w *World) applyTuning(t tuning.Tuning) {
	w.tun = t
	rep, unknown := t.ReplaceableMaterials()
	for _, name := range unknown {
		w.log.Warn().Str("material", name).Msg("unknown replaceable material ignored")
	}
	w.replaceable = rep
}

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- uuid.UUID      { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Engine exposes the trail engine for inspection; it must only be used from the
// world loop goroutine or after Run has returned.
func (w *World) Engine() *cycle.Engine { return w.engine }

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Done is closed once Run has returned and every trail has been restored.
func (w *World) Done() <-chan struct{} { return w.done }

func (w *World) realmNamed(name string) (*realm, bool) {
	r, ok := w.realmByName[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
