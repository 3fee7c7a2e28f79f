package cycle

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lightcycle.ai/internal/sim/trail"
	"lightcycle.ai/internal/sim/tuning"
	"lightcycle.ai/internal/sim/voxel"
)

// Renderer makes segments visible and takes them away again. Retract is installed
// as the store's release hook, so it runs for every removal path.
type Renderer interface {
	Mode() tuning.RenderMode
	Place(seg trail.Segment) error
	Retract(seg trail.Segment)
	// Resync resends live segments around viewer, nearest first, skipping the
	// first from of them. It returns the cell changes sent, the index to resume
	// at and whether segments were left over by the cap.
	Resync(viewer uuid.UUID, from int) (sent, next int, more bool)
}

type renderSettings struct {
	viewRange  float64
	maxChanges int
	lightLevel uint8
}

func settingsFrom(t tuning.Tuning) renderSettings {
	return renderSettings{
		viewRange:  t.IllusionRange(),
		maxChanges: t.Trail.Illusion.MaxChangesPerResync,
		lightLevel: uint8(t.Lighting.Level),
	}
}

func newRenderer(mode tuning.RenderMode, env Env, store *trail.Store, set *renderSettings, log zerolog.Logger) Renderer {
	if mode == tuning.RenderIllusion {
		return &illusionRenderer{cells: env.Cells, viewers: env.Viewers, store: store, set: set, log: log}
	}
	return &sharedRenderer{cells: env.Cells, set: set, log: log}
}

func paneCell(c voxel.Color) voxel.Cell { return voxel.Cell{Material: c.Pane()} }

// sharedRenderer writes trail panes into the authoritative world.
type sharedRenderer struct {
	cells Cells
	set   *renderSettings
	log   zerolog.Logger
}

func (r *sharedRenderer) Mode() tuning.RenderMode { return tuning.RenderShared }

func (r *sharedRenderer) Place(seg trail.Segment) error {
	w, base := seg.Key.World, seg.Key.Pos
	pane := paneCell(seg.Color)
	if err := r.cells.SetCell(w, base, pane); err != nil {
		return err
	}
	if err := r.cells.SetCell(w, base.Up(1), pane); err != nil {
		return err
	}
	if seg.Glow {
		if err := r.cells.SetCell(w, base.Up(2), voxel.LightCell(r.set.lightLevel)); err != nil {
			return err
		}
	}
	refreshPanes(r.cells, w, base)
	return nil
}

func (r *sharedRenderer) Retract(seg trail.Segment) {
	w, base := seg.Key.World, seg.Key.Pos
	restore(r.cells, r.log, w, base, seg.OrigBase)
	restore(r.cells, r.log, w, base.Up(1), seg.OrigAbove)
	if seg.Glow {
		restore(r.cells, r.log, w, base.Up(2), seg.OrigGlow)
	}
	refreshPanes(r.cells, w, base)
}

func (r *sharedRenderer) Resync(uuid.UUID, int) (int, int, bool) { return 0, 0, false }

// illusionRenderer shows trails only to nearby viewers; the world keeps its real
// cells except for the optional glow light.
type illusionRenderer struct {
	cells   Cells
	viewers Viewers
	store   *trail.Store
	set     *renderSettings
	log     zerolog.Logger
}

func (r *illusionRenderer) Mode() tuning.RenderMode { return tuning.RenderIllusion }

func (r *illusionRenderer) Place(seg trail.Segment) error {
	w, base := seg.Key.World, seg.Key.Pos
	if seg.Glow {
		if err := r.cells.SetCell(w, base.Up(2), voxel.LightCell(r.set.lightLevel)); err != nil {
			return err
		}
	}
	pane := paneCell(seg.Color)
	for _, v := range r.viewers.ViewersNear(w, base.Vec(), r.set.viewRange) {
		r.viewers.SendOverride(v, w, base, pane)
		r.viewers.SendOverride(v, w, base.Up(1), pane)
	}
	return nil
}

func (r *illusionRenderer) Retract(seg trail.Segment) {
	w, base := seg.Key.World, seg.Key.Pos
	if seg.Glow {
		restore(r.cells, r.log, w, base.Up(2), seg.OrigGlow)
	}
	realBase, errBase := r.cells.Cell(w, base)
	realAbove, errAbove := r.cells.Cell(w, base.Up(1))
	for _, v := range r.viewers.ViewersNear(w, base.Vec(), r.set.viewRange) {
		if errBase == nil {
			r.viewers.SendReal(v, w, base, realBase)
		}
		if errAbove == nil {
			r.viewers.SendReal(v, w, base.Up(1), realAbove)
		}
	}
}

func (r *illusionRenderer) Resync(viewer uuid.UUID, from int) (sent, next int, more bool) {
	w, pos, ok := r.viewers.ViewerPos(viewer)
	if !ok {
		return 0, 0, false
	}
	segs := r.store.Within(w, pos, r.set.viewRange)
	i := min(max(from, 0), len(segs))
	for ; i < len(segs); i++ {
		if sent+2 > r.set.maxChanges {
			break
		}
		seg := segs[i]
		pane := paneCell(seg.Color)
		r.viewers.SendOverride(viewer, w, seg.Key.Pos, pane)
		r.viewers.SendOverride(viewer, w, seg.Key.Pos.Up(1), pane)
		sent += 2
	}
	return sent, i, i < len(segs) && sent > 0
}

func restore(cells Cells, log zerolog.Logger, w uuid.UUID, p voxel.Pos, c voxel.Cell) {
	if err := cells.SetCell(w, p, c); err != nil {
		log.Warn().Err(err).Int("x", p.X).Int("y", p.Y).Int("z", p.Z).Msg("restore cell failed")
	}
}

// refreshPanes recomputes pane connectivity for the two trail cells at base and
// their four horizontal neighbours.
func refreshPanes(cells Cells, w uuid.UUID, base voxel.Pos) {
	for dy := 0; dy <= 1; dy++ {
		p := base.Up(dy)
		updatePane(cells, w, p)
		updatePane(cells, w, p.Add(1, 0, 0))
		updatePane(cells, w, p.Add(-1, 0, 0))
		updatePane(cells, w, p.Add(0, 0, 1))
		updatePane(cells, w, p.Add(0, 0, -1))
	}
}

func updatePane(cells Cells, w uuid.UUID, p voxel.Pos) {
	c, err := cells.Cell(w, p)
	if err != nil || !c.Material.IsPane() {
		return
	}
	var faces voxel.Faces
	if isPaneAt(cells, w, p.Add(0, 0, -1)) {
		faces |= voxel.North
	}
	if isPaneAt(cells, w, p.Add(0, 0, 1)) {
		faces |= voxel.South
	}
	if isPaneAt(cells, w, p.Add(1, 0, 0)) {
		faces |= voxel.East
	}
	if isPaneAt(cells, w, p.Add(-1, 0, 0)) {
		faces |= voxel.West
	}
	if faces == c.Faces {
		return
	}
	c.Faces = faces
	_ = cells.SetCell(w, p, c)
}

func isPaneAt(cells Cells, w uuid.UUID, p voxel.Pos) bool {
	c, err := cells.Cell(w, p)
	return err == nil && c.Material.IsPane()
}
