package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pharmacy-chat-service/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authentication context issued by the storefront's
// auth layer. The chat service only verifies and consumes it.
type Identity struct {
	UserID      int
	Role        models.Role
	DisplayName string
}

type tokenClaims struct {
	Role models.Role `json:"role"`
	Name string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ValidateToken verifies an externally issued JWT and extracts the identity.
func ValidateToken(tokenString string, secretKey []byte) (Identity, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := claims.GetSubject()
	if err != nil || userID == "" {
		return Identity{}, ErrInvalidToken
	}
	id, err := strconv.Atoi(userID)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: id, Role: claims.Role, DisplayName: claims.Name}, nil
}

// GenerateToken signs an identity token. The storefront issues tokens in
// production; this exists for tooling and tests.
func GenerateToken(identity Identity, secretKey []byte, expiry time.Duration) (string, error) {
	if identity.UserID == 0 {
		return "", errors.New("user ID cannot be zero")
	}
	if !identity.Role.Valid() {
		return "", errors.New("invalid role")
	}

	claims := tokenClaims{
		Role: identity.Role,
		Name: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(identity.UserID),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}
