package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/config"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "armoryline",
		ExpirationMinutes: 30,
	}
	now := time.Now().UTC()
	userID := uuid.New()
	vendorID := uuid.New()

	payload := AccessTokenPayload{
		UserID:   userID,
		VendorID: &vendorID,
		Role:     enums.RoleVendor,
	}

	token, err := MintAccessToken(cfg, now, payload)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.VendorID == nil || *claims.VendorID != vendorID {
		t.Fatalf("vendor id not preserved")
	}
	if claims.Role != enums.RoleVendor {
		t.Fatalf("unexpected role %s", claims.Role)
	}

	// RegisteredClaims is embedded, so access fields directly.
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected generated jti")
	}

	exp := now.Add(cfg.TokenTTL())
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v (diff %v)", exp.UTC(), claims.ExpiresAt.UTC(), diff)
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "armoryline",
		ExpirationMinutes: 10,
	}
	now := time.Now()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleCustomer,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := config.JWTConfig{Secret: "different", Issuer: cfg.Issuer}
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "armoryline",
		ExpirationMinutes: 10,
	}

	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := config.JWTConfig{Secret: cfg.Secret, Issuer: "someone-else"}
	_, err = ParseAccessToken(other, token)
	if err == nil {
		t.Fatalf("expected issuer error")
	}
	if !strings.Contains(err.Error(), "iss") {
		t.Logf("issuer rejection surfaced as: %v", err)
	}
}

func TestMintAccessTokenRejectsInvalidRole(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:            "secret",
		Issuer:            "armoryline",
		ExpirationMinutes: 10,
	}

	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.Role("superuser"),
	})
	if err == nil {
		t.Fatalf("expected role validation error")
	}
}
