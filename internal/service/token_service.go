package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/pkg/config"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

// TokenService validates access tokens issued by the external identity
// service. The core never issues tokens; it only verifies the shared-secret
// signature and reads the organization claims.
type TokenService struct {
	secret []byte
}

// NewTokenService constructs TokenService.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{secret: []byte(cfg.Secret)}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.OrganizationID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no organization")
	}

	return claims, nil
}
