// Package prefs keeps each owner's preferred cycle color. Reads are served
// from memory; writes are queued and persisted by a background goroutine so
// the world loop never waits on disk.
package prefs

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lightcycle.ai/internal/sim/voxel"
)

const (
	BackendSQLite = "sqlite"
	BackendYAML   = "yaml"
	BackendNone   = "none"

	queueCapacity = 4096
	maxBatch      = 256
)

type row struct {
	Owner uuid.UUID
	Color voxel.Color
}

// sink persists batches of rows. It is only touched by the writer goroutine
// after construction.
type sink interface {
	load() (map[uuid.UUID]voxel.Color, error)
	write(rows []row) error
	close() error
}

type Store struct {
	mu     sync.RWMutex
	colors map[uuid.UUID]voxel.Color

	sink sink
	log  zerolog.Logger

	ch     chan row
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	dropped atomic.Uint64
}

// Open returns a store for backend, reading any existing preferences from
// dataDir. BackendNone (or "") keeps preferences in memory only.
func Open(backend, dataDir string, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "prefs").Logger()
	var sk sink
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendNone:
		return NewMemory(), nil
	case BackendSQLite:
		s, err := openSQLite(filepath.Join(dataDir, "prefs.db"))
		if err != nil {
			return nil, err
		}
		sk = s
	case BackendYAML:
		sk = newYAMLFile(filepath.Join(dataDir, "prefs.yaml"))
	default:
		return nil, fmt.Errorf("prefs: unknown backend %q", backend)
	}

	colors, err := sk.load()
	if err != nil {
		_ = sk.close()
		return nil, fmt.Errorf("prefs: load: %w", err)
	}
	st := &Store{
		colors: colors,
		sink:   sk,
		log:    log,
		ch:     make(chan row, queueCapacity),
	}
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()
		st.loop()
	}()
	log.Info().Str("backend", backend).Int("owners", len(colors)).Msg("preferences loaded")
	return st, nil
}

// NewMemory returns a store without persistence.
func NewMemory() *Store {
	return &Store{colors: map[uuid.UUID]voxel.Color{}, log: zerolog.Nop()}
}

func (s *Store) Color(owner uuid.UUID) (voxel.Color, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.colors[owner]
	return c, ok
}

func (s *Store) SetColor(owner uuid.UUID, c voxel.Color) {
	s.mu.Lock()
	s.colors[owner] = c
	s.mu.Unlock()

	if s.ch == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- row{Owner: owner, Color: c}:
	default:
		// The in-memory value still applies for this process.
		n := s.dropped.Add(1)
		s.log.Warn().Uint64("dropped", n).Str("owner", owner.String()).Msg("preference write queue full")
	}
}

// Len reports how many owners have a stored preference.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.colors)
}

// Dropped reports writes that never reached the backend.
func (s *Store) Dropped() uint64 { return s.dropped.Load() }

// Close flushes queued writes and releases the backend.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		if s.ch == nil {
			return
		}
		close(s.ch)
		s.wg.Wait()
		err = s.sink.close()
	})
	return err
}

func (s *Store) loop() {
	batch := make([]row, 0, maxBatch)
	for r := range s.ch {
		batch = append(batch[:0], r)
	drain:
		for len(batch) < maxBatch {
			select {
			case more, ok := <-s.ch:
				if !ok {
					break drain
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}
		if err := s.sink.write(batch); err != nil {
			s.dropped.Add(uint64(len(batch)))
			s.log.Error().Err(err).Int("rows", len(batch)).Msg("persist preferences")
		}
	}
}
