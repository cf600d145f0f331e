package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/duka-backend/pkg/config"
	"github.com/angelmondragon/duka-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "duka", ExpirationMinutes: 30}

func TestMintAndParseSupplierToken(t *testing.T) {
	supplierID := uuid.New()
	userID := uuid.New()
	token, err := MintAccessToken(testJWT, time.Now(), ActorPayload{
		UserID:     userID,
		Role:       enums.ActorRoleSupplier,
		SupplierID: &supplierID,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseAccessToken(testJWT, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != userID || claims.Role != enums.ActorRoleSupplier {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.SupplierID == nil || *claims.SupplierID != supplierID {
		t.Fatal("supplier id not preserved")
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be generated")
	}
}

func TestMintRejectsSupplierWithoutScope(t *testing.T) {
	_, err := MintAccessToken(testJWT, time.Now(), ActorPayload{UserID: uuid.New(), Role: enums.ActorRoleSupplier})
	if !errors.Is(err, ErrSupplierScope) {
		t.Fatalf("expected ErrSupplierScope, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), ActorPayload{UserID: uuid.New(), Role: enums.ActorRoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(testJWT, token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestParseRejectsForeignIssuerAndSecret(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now(), ActorPayload{UserID: uuid.New(), Role: enums.ActorRoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := testJWT
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}
	other = testJWT
	other.Secret = "rotated"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}
