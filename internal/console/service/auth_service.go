package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/krisyupher/Focus-MotherFocus-sub001/internal/domain"
)

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type AuthService struct {
	repo       AuthProvider
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
}

func NewAuthService(repo AuthProvider, privateKey *rsa.PrivateKey, tokenTTL time.Duration) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{
		repo:       repo,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (Источник правды — Postgres)
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (используем bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Формирование Claims (Scopes берем из прав пользователя в БД)
	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		UserID: user.ID,
		Scopes: user.Scopes, // Напр. map[string]bool{"agreements.extend": true}
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "focus-console",
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
