package world

import (
	"github.com/google/uuid"

	"lightcycle.ai/internal/protocol"
)

type JoinRequest struct {
	Name  string
	World string
	Token string
	Out   chan []byte
	Resp  chan JoinResponse
}

// JoinResponse carries either a welcome or a protocol error code.
type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Code    string
	Message string
}

type ActionEnvelope struct {
	OwnerID uuid.UUID
	Act     protocol.ActMsg
}

var ownerNamespace = uuid.MustParse("6c1f3c2e-5a0b-4f5e-9d62-2f1f0e0c7a11")

// OwnerID is the stable identity of a rider name; names are case-insensitive.
func OwnerID(name string) uuid.UUID {
	return uuid.NewSHA1(ownerNamespace, []byte(normalizeName(name)))
}

// RealmID is the stable identity of a world name.
func RealmID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}
