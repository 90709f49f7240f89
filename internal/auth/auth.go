package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserStore persists registered users
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService handles user authentication and resolves tokens to identities
type AuthService struct {
	Users    UserStore
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{Users: users, secret: []byte(secret), tokenTTL: tokenTTL, now: time.Now}
}

// Registration is the sign-up form
type Registration struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	State    string      `json:"state"`
	Pincode  string      `json:"pincode"`
}

// Register creates a new user with hashed password
func (s *AuthService) Register(ctx context.Context, reg Registration) (*models.User, error) {
	// Validate input
	if reg.Username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", market.ErrInvalidInput)
	}
	if reg.Password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", market.ErrInvalidInput)
	}
	if len(reg.Username) > 50 {
		return nil, fmt.Errorf("%w: username too long (max 50 characters)", market.ErrInvalidInput)
	}
	if len(reg.Password) > 72 {
		return nil, fmt.Errorf("%w: password too long (max 72 characters)", market.ErrInvalidInput)
	}
	if reg.Role != models.RoleVendor && reg.Role != models.RoleSupplier {
		return nil, fmt.Errorf("%w: role must be vendor or supplier", market.ErrInvalidInput)
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.Users.CreateUser(ctx, &models.User{
		Username:     reg.Username,
		Name:         strings.TrimSpace(reg.Name),
		PasswordHash: string(hashedPassword),
		Role:         reg.Role,
		State:        strings.TrimSpace(reg.State),
		Pincode:      strings.TrimSpace(reg.Pincode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, market.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.IssueToken(user)
}

// IssueToken signs a token carrying the user's identity
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"name":    user.Name,
		"role":    user.Role.String(),
		"state":   user.State,
		"pincode": user.Pincode,
		"exp":     s.now().Add(s.tokenTTL).Unix(),
	})
	return token.SignedString(s.secret)
}

// IdentityFromToken verifies a JWT and extracts the identity it carries
func (s *AuthService) IdentityFromToken(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", market.ErrNotAuthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Identity{}, market.ErrNotAuthenticated
	}

	userID, _ := claims["user_id"].(string)
	roleName, _ := claims["role"].(string)
	role, err := models.ParseRole(roleName)
	if userID == "" || err != nil {
		return models.Identity{}, fmt.Errorf("%w: malformed claims", market.ErrNotAuthenticated)
	}

	name, _ := claims["name"].(string)
	state, _ := claims["state"].(string)
	pincode, _ := claims["pincode"].(string)
	return models.Identity{UserID: userID, Name: name, Role: role, State: state, Pincode: pincode}, nil
}
