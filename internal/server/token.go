package server

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quillchat/quill/internal/config"
)

// queueClaims is the JWT payload bound to one event queue.
type queueClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// newQueueToken signs a token authorizing polls against the given queue.
func newQueueToken(cfg config.JWTConfig, queueID, email string) (string, error) {
	now := time.Now()
	claims := queueClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   queueID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// parseQueueToken validates a token and returns its claims.
func parseQueueToken(cfg config.JWTConfig, tokenString string) (*queueClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &queueClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*queueClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
