package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// ActorPayload is what gets signed into an access token.
type ActorPayload struct {
	UserID     uuid.UUID
	Role       enums.ActorRole
	SupplierID *uuid.UUID
	JTI        string
}

// ActorClaims is the typed JWT accepted by the API. Supplier tokens must carry
// the supplier they act for.
type ActorClaims struct {
	UserID     uuid.UUID       `json:"user_id"`
	Role       enums.ActorRole `json:"role"`
	SupplierID *uuid.UUID      `json:"supplier_id,omitempty"`
	jwt.RegisteredClaims
}
