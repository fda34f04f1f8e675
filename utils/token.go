package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid access token")

type JwtCustomClaim struct {
	ID   int    `json:"id"`
	Role string `json:"role"`
	jwt.StandardClaims
}

// Identity is what an access token resolves to.
type Identity struct {
	UserId int
	Role   string
}

func JwtSecret() []byte {
	secret := os.Getenv("API_SECRET")
	if secret == "" {
		return []byte("FieldOps-Secret")
	}
	return []byte(secret)
}

func JwtGenerate(secret []byte, userID int, role string) (string, error) {
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || tokenLifespan <= 0 {
		tokenLifespan = 24
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:   userID,
		Role: role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})
	return t.SignedString(secret)
}

func JwtValidate(secret []byte, token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return secret, nil
	})
}

// ResolveToken turns an opaque access token into the caller's identity.
func ResolveToken(secret []byte, token string) (Identity, error) {
	parsed, err := JwtValidate(secret, token)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	claim, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserId: claim.ID, Role: claim.Role}, nil
}
