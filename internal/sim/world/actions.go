package world

import (
	"errors"
	"fmt"
	"time"

	"lightcycle.ai/internal/protocol"
	"lightcycle.ai/internal/sim/cycle"
)

func (w *World) handleAct(env ActionEnvelope, now time.Time) {
	r, ok := w.riders[env.OwnerID]
	if !ok {
		return
	}
	if st := env.Act.Steer; st != nil {
		r.Yaw = st.Yaw
		r.Throttle = clampThrottle(st.Throttle)
		if v, ok := w.vehicles[r.Vehicle]; ok {
			v.Yaw, v.Throttle = r.Yaw, r.Throttle
		}
	}
	for _, cmd := range env.Act.Commands {
		msg, err := w.runCommand(r, cmd, now)
		ack := protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          cmd.ID,
			Accepted:        err == nil,
			Message:         msg,
			ServerTick:      w.tick.Load(),
		}
		if err != nil {
			ack.Code = codeFor(err)
			ack.Message = err.Error()
		}
		w.sendJSON(r.ID, ack)
	}
}

// commandError carries a protocol code for failures raised by the host itself.
type commandError struct {
	code string
	msg  string
}

func (e *commandError) Error() string { return e.msg }

func (w *World) runCommand(r *Rider, cmd protocol.Command, now time.Time) (string, error) {
	switch cmd.Type {
	case protocol.CmdInteract:
		return "", w.engine.Interact(r.ID, now)
	case protocol.CmdToggleTrail:
		on, err := w.engine.ToggleTrail(r.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("trail=%t", on), nil
	case protocol.CmdColor:
		c, err := w.engine.SetColor(r.ID, cmd.Color)
		if err != nil {
			return "", err
		}
		return c.String(), nil
	case protocol.CmdMount:
		if r.Mounted() {
			return "", &commandError{code: protocol.ErrBadRequest, msg: "already mounted"}
		}
		if !w.mount(r) {
			return "", &commandError{code: protocol.ErrNoSession, msg: "no vehicle in reach"}
		}
		return "", nil
	case protocol.CmdDismount:
		if !r.Mounted() {
			return "", &commandError{code: protocol.ErrBadRequest, msg: "not mounted"}
		}
		w.dismount(r)
		return "", nil
	case protocol.CmdTravel:
		to, ok := w.realmNamed(cmd.World)
		if !ok {
			return "", &commandError{code: protocol.ErrWorldNotFound, msg: "unknown world " + cmd.World}
		}
		w.travel(r, to, now)
		return to.Name, nil
	case protocol.CmdResync:
		return fmt.Sprintf("changes=%d", w.engine.Resync(r.ID)), nil
	case protocol.CmdReload:
		if !r.Operator {
			return "", cycle.ErrNotOperator
		}
		if w.reload == nil {
			return "", &commandError{code: protocol.ErrBlocked, msg: "reload disabled"}
		}
		if w.reloading {
			return "", &commandError{code: protocol.ErrRateLimit, msg: "reload in progress"}
		}
		w.reloading = true
		load, owner := w.reload, r.ID
		go func() { w.reloaded <- reloadResult{owner: owner, tun: load()} }()
		return "reloading", nil
	case protocol.CmdDerez:
		return "", w.engine.Crash(r.ID, now)
	default:
		return "", &commandError{code: protocol.ErrBadRequest, msg: "unknown command " + cmd.Type}
	}
}

func codeFor(err error) string {
	var ce *commandError
	switch {
	case errors.As(err, &ce):
		return ce.code
	case errors.Is(err, cycle.ErrDebounced):
		return protocol.ErrRateLimit
	case errors.Is(err, cycle.ErrSpawnCooldown):
		return protocol.ErrCooldown
	case errors.Is(err, cycle.ErrWorldNotAllowed):
		return protocol.ErrWorldDenied
	case errors.Is(err, cycle.ErrNoSession):
		return protocol.ErrNoSession
	case errors.Is(err, cycle.ErrNotOperator):
		return protocol.ErrNoPermission
	case errors.Is(err, cycle.ErrUnknownColor), errors.Is(err, cycle.ErrUnknownOwner):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}

// applyReloads installs tuning that finished loading since the last step.
func (w *World) applyReloads() {
	for {
		select {
		case res := <-w.reloaded:
			w.reloading = false
			if err := w.engine.Reload(res.owner, res.tun); err != nil {
				w.log.Warn().Err(err).Str("owner", res.owner.String()).Msg("reload dropped")
				continue
			}
			w.applyTuning(w.engine.Tuning())
		default:
			return
		}
	}
}
