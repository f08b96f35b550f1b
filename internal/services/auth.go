package services

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/envutil"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

type JWTClaims struct {
	jwt.RegisteredClaims
}

// TokenVerifier checks bearer tokens issued by the identity service and
// extracts the user they belong to. This service never mints tokens.
type TokenVerifier interface {
	VerifyToken(tokenString string) (uuid.UUID, error)
}

type tokenVerifier struct {
	log       *logger.Logger
	jwtSecret []byte
}

func NewTokenVerifier(baseLog *logger.Logger) (TokenVerifier, error) {
	secret := envutil.Str("JWT_SECRET_KEY", "")
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET_KEY")
	}
	return &tokenVerifier{
		log:       baseLog.With("service", "TokenVerifier"),
		jwtSecret: []byte(secret),
	}, nil
}

func (v *tokenVerifier) VerifyToken(tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, apierr.Authorization(errors.New("missing bearer token"))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.jwtSecret, nil
	})
	if err != nil {
		return uuid.Nil, apierr.Authorization(fmt.Errorf("parse token: %w", err))
	}

	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, apierr.Authorization(errors.New("invalid or expired token"))
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, apierr.Authorization(fmt.Errorf("invalid user id in token: %w", err))
	}
	return userID, nil
}
