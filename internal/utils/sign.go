package utils

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by access tokens. Subject is the identity id and ID the jti
// checked against the revocation list.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

var ErrTokenExpired = errors.New("token expired")

// SignAccessToken issues an RS256 access token valid for ttl.
func SignAccessToken(userID, username string, ttl time.Duration, privateKey *rsa.PrivateKey) (string, string, error) {
	now := time.Now()
	jti := uuid.NewString()

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := GenerateSign(claims, privateKey)
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

func GenerateSign(claims *Claims, privateKey *rsa.PrivateKey) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
}

// ParseAndVerifySign checks signature and expiry. An expired token yields
// ErrTokenExpired so callers can tell it apart from a forged one.
func ParseAndVerifySign(token string, pubKey *rsa.PublicKey) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return pubKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
