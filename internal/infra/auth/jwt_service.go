package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingSecret = errors.New("JWT secret is required")
)

// Claims is the identity carried by a dashboard access token
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// TokenVerifier validates bearer tokens issued by the backend.
type TokenVerifier interface {
	ValidateAccessToken(token string) (*Claims, error)
}

// JWTService verifies HS256 tokens signed with the secret shared with the backend.
type JWTService struct {
	hmacSecret []byte
}

func NewJWTService(secret string) (*JWTService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &JWTService{hmacSecret: []byte(secret)}, nil
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.hmacSecret, nil
	})
	if err != nil {
		return nil, s.handleValidationError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if tokenType, present := claims["type"]; present && tokenType != "access" {
		return nil, ErrInvalidToken
	}

	userID := claimString(claims["user_id"])
	if userID == "" {
		userID = claimString(claims["sub"])
	}
	if userID == "" {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID: userID,
		Role:   claimString(claims["role"]),
	}, nil
}

func (s *JWTService) handleValidationError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}

// claimString accepts string and numeric ids; the backend uses integer user ids.
func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

type identityKey struct{}

type identity struct {
	claims *Claims
	token  string
}

// WithIdentity stores the verified claims and the raw bearer token in ctx.
// The token is forwarded to the backend so its permission checks still apply.
func WithIdentity(ctx context.Context, claims *Claims, token string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{claims: claims, token: token})
}

// ClaimsFrom returns the claims stored by WithIdentity, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	if id, ok := ctx.Value(identityKey{}).(identity); ok {
		return id.claims
	}
	return nil
}

// BearerToken returns the raw token stored by WithIdentity, or "".
func BearerToken(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey{}).(identity); ok {
		return id.token
	}
	return ""
}
