package auth

import (
	"fmt"
	"time"

	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	claimStaff     = "staff"
	claimSuperuser = "superuser"

	// Issuer is written into every token this package signs.
	Issuer = "ymm-auth"
)

// GenerateToken signs an HS256 token carrying the actor's name and roles.
func GenerateToken(actor models.Actor, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":          actor.Username,
		claimStaff:     actor.IsStaff,
		claimSuperuser: actor.IsSuperuser,
		"iat":          now.Unix(),
		"exp":          now.Add(ttl).Unix(),
		"iss":          Issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validateToken checks the token signature and returns parsed claims if valid.
func validateToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token claims")
}

// actorFromClaims builds the actor; a token without a subject is rejected.
func actorFromClaims(claims jwt.MapClaims) (models.Actor, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.Actor{}, fmt.Errorf("token has no subject")
	}
	staff, _ := claims[claimStaff].(bool)
	superuser, _ := claims[claimSuperuser].(bool)
	return models.Actor{Username: sub, IsStaff: staff, IsSuperuser: superuser}, nil
}
