package state

import (
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// InitSecret loads the RSA public key used to verify access tokens. The
// private key is optional; only token issuing tools need it.
func InitSecret(publicPath, privatePath string) (*JwtSecret, error) {
	pubKeyBytes, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, err
	}

	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}

	secret := &JwtSecret{Public: pubKey}
	if privatePath == "" {
		log.Info().Msg("JWT public key initialized successfully")
		return secret, nil
	}

	privKeyBytes, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, err
	}
	secret.Private, err = jwt.ParseRSAPrivateKeyFromPEM(privKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	log.Info().Msg("JWT secret initialized successfully")
	return secret, nil
}
