package service

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/aoabd/course-api/internal/models"
	"github.com/aoabd/course-api/pkg/config"
	appErrors "github.com/aoabd/course-api/pkg/errors"
)

// AuthService verifies access tokens minted by the upstream auth gateway.
// This API never issues tokens itself.
type AuthService struct {
	secret []byte
}

// NewAuthService constructs AuthService.
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{secret: []byte(cfg.Secret)}
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}
