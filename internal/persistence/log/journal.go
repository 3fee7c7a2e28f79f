package log

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"lightcycle.ai/internal/sim/cycle"
)

// Journal records lightcycle events off the world goroutine. Record never
// blocks: when the queue is full the event is dropped and counted.
type Journal struct {
	w   *HourlyJSONL
	log zerolog.Logger

	queue   chan cycle.Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func NewJournal(dataDir string, logger zerolog.Logger) *Journal {
	j := &Journal{
		w:     NewHourlyJSONL(filepath.Join(dataDir, "journal"), "cycles"),
		log:   logger.With().Str("component", "journal").Logger(),
		queue: make(chan cycle.Event, 1024),
		done:  make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *Journal) Record(ev cycle.Event) {
	select {
	case j.queue <- ev:
	default:
		if j.dropped.Add(1)%100 == 1 {
			j.log.Warn().Uint64("dropped", j.dropped.Load()).Msg("journal queue full")
		}
	}
}

func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

func (j *Journal) run() {
	defer close(j.done)
	for ev := range j.queue {
		if err := j.w.Write(ev); err != nil {
			j.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("journal write failed")
		}
	}
}

// Close drains the queue and closes the current file. Record must not be
// called after Close.
func (j *Journal) Close() error {
	j.once.Do(func() { close(j.queue) })
	<-j.done
	return j.w.Close()
}
