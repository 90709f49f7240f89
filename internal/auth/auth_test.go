package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xtrntr/supplylink/internal/db"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

func newService() *AuthService {
	return NewAuthService(db.NewMemory(), testSecret, time.Hour)
}

func vendorRegistration(username, password string) Registration {
	return Registration{
		Username: username,
		Password: password,
		Name:     "Asha Traders",
		Role:     models.RoleVendor,
		State:    "Maharashtra",
		Pincode:  "411001",
	}
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name        string
		reg         Registration
		expectError bool
	}{
		{
			name:        "Success",
			reg:         vendorRegistration("alice", "password123"),
			expectError: false,
		},
		{
			name:        "EmptyUsername",
			reg:         vendorRegistration("", "password123"),
			expectError: true,
		},
		{
			name:        "EmptyPassword",
			reg:         vendorRegistration("bob", ""),
			expectError: true,
		},
		{
			name:        "LongUsername",
			reg:         vendorRegistration(strings.Repeat("a", 1000), "password123"),
			expectError: true,
		},
		{
			name:        "LongPassword",
			reg:         vendorRegistration("carol", strings.Repeat("p", 100)),
			expectError: true,
		},
		{
			name: "MissingRole",
			reg: Registration{
				Username: "dave",
				Password: "password123",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService()
			user, err := s.Register(context.Background(), tt.reg)
			if tt.expectError {
				if !errors.Is(err, market.ErrInvalidInput) {
					t.Errorf("expected invalid input, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if user.Username != tt.reg.Username {
				t.Errorf("expected username %q, got %q", tt.reg.Username, user.Username)
			}
			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(tt.reg.Password)); err != nil {
				t.Errorf("password hash mismatch")
			}
		})
	}
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	s := newService()
	if _, err := s.Register(context.Background(), vendorRegistration("alice", "password123")); err != nil {
		t.Fatalf("Failed to create user for duplicate test: %v", err)
	}
	if _, err := s.Register(context.Background(), vendorRegistration("alice", "newpass")); !errors.Is(err, db.ErrUsernameTaken) {
		t.Errorf("expected username taken, got %v", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	s := newService()
	s.Register(context.Background(), vendorRegistration("alice", "password123"))

	tests := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{
			name:        "Success",
			username:    "alice",
			password:    "password123",
			expectError: false,
		},
		{
			name:        "WrongPassword",
			username:    "alice",
			password:    "wrongpass",
			expectError: true,
		},
		{
			name:        "NonExistentUser",
			username:    "bob",
			password:    "password123",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := s.Login(context.Background(), tt.username, tt.password)
			if tt.expectError {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("expected invalid credentials, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
				return []byte(testSecret), nil
			})
			if err != nil {
				t.Errorf("invalid token: %v", err)
				return
			}
			claims, ok := parsed.Claims.(jwt.MapClaims)
			if !ok || claims["role"] != "vendor" || claims["state"] != "Maharashtra" {
				t.Errorf("invalid token claims: %v", claims)
			}
		})
	}
}

func TestAuthService_IdentityFromToken(t *testing.T) {
	s := newService()
	user, _ := s.Register(context.Background(), vendorRegistration("alice", "password123"))
	token, _ := s.Login(context.Background(), "alice", "password123")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    "vendor",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	expiredStr, _ := expired.SignedString([]byte(testSecret))

	fresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    "vendor",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	wrongKey, _ := fresh.SignedString([]byte("wrong-key"))

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	noRoleStr, _ := noRole.SignedString([]byte(testSecret))

	tests := []struct {
		name        string
		token       string
		expectError bool
	}{
		{name: "Success", token: token},
		{name: "ExpiredToken", token: expiredStr, expectError: true},
		{name: "InvalidSignature", token: wrongKey, expectError: true},
		{name: "MissingRole", token: noRoleStr, expectError: true},
		{name: "EmptyToken", token: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.IdentityFromToken(tt.token)
			if tt.expectError {
				if !errors.Is(err, market.ErrNotAuthenticated) {
					t.Errorf("expected not authenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			want := models.Identity{UserID: user.ID, Name: "Asha Traders", Role: models.RoleVendor, State: "Maharashtra", Pincode: "411001"}
			if id != want {
				t.Errorf("expected identity %+v, got %+v", want, id)
			}
		})
	}
}
