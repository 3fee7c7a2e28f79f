package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldNotFound = "E_WORLD_NOT_FOUND"
	ErrWorldDenied   = "E_WORLD_DENIED"

	// Command layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrCooldown     = "E_COOLDOWN"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrNoSession    = "E_NO_SESSION"
	ErrBlocked      = "E_BLOCKED"
	ErrConflict     = "E_CONFLICT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldNotFound:   {},
	ErrWorldDenied:     {},
	ErrBadRequest:      {},
	ErrCooldown:        {},
	ErrRateLimit:       {},
	ErrNoPermission:    {},
	ErrNoSession:       {},
	ErrBlocked:         {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
