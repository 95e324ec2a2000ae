package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/buildledger/buildledger/internal/shared"
)

// Service issues and verifies API tokens.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Issue creates a token and returns its plaintext form exactly once.
func (s *Service) Issue(ctx context.Context, ownerID, userID int64, name string, permissions []string) (string, Token, error) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", Token{}, err
	}
	secret := hex.EncodeToString(secretBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", Token{}, err
	}
	token := Token{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		UserID:      userID,
		Name:        name,
		SecretHash:  string(hash),
		Permissions: permissions,
		IsActive:    true,
	}
	if err := s.repo.Insert(ctx, token); err != nil {
		return "", Token{}, err
	}
	plaintext := fmt.Sprintf("%s%s.%s", TokenPrefix, token.ID, secret)
	return plaintext, token, nil
}

// Verify checks a plaintext token and returns the actor it represents.
func (s *Service) Verify(ctx context.Context, plaintext string) (shared.Actor, error) {
	id, secret, err := parseToken(plaintext)
	if err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	token, err := s.repo.Get(ctx, id)
	if err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	if !token.IsActive {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	_ = s.repo.Touch(ctx, token.ID, s.now())
	return shared.NewActor(token.UserID, token.OwnerID, token.Permissions...), nil
}

// Revoke deactivates a token within the owner scope.
func (s *Service) Revoke(ctx context.Context, actor shared.Actor, id uuid.UUID) error {
	return s.repo.Revoke(ctx, actor.OwnerID, id)
}

func parseToken(plaintext string) (uuid.UUID, string, error) {
	raw, ok := strings.CutPrefix(plaintext, TokenPrefix)
	if !ok {
		return uuid.Nil, "", ErrMalformedToken
	}
	idPart, secret, ok := strings.Cut(raw, ".")
	if !ok || secret == "" {
		return uuid.Nil, "", ErrMalformedToken
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", ErrMalformedToken
	}
	return id, secret, nil
}
