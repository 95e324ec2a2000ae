package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/shared"
)

type fakeTokenRepo struct {
	tokens map[uuid.UUID]*Token
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[uuid.UUID]*Token)}
}

func (r *fakeTokenRepo) Insert(_ context.Context, token Token) error {
	token.CreatedAt = time.Now()
	r.tokens[token.ID] = &token
	return nil
}

func (r *fakeTokenRepo) Get(_ context.Context, id uuid.UUID) (Token, error) {
	t, ok := r.tokens[id]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	return *t, nil
}

func (r *fakeTokenRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	if t, ok := r.tokens[id]; ok {
		t.LastUsedAt = &at
	}
	return nil
}

func (r *fakeTokenRepo) Revoke(_ context.Context, ownerID int64, id uuid.UUID) error {
	t, ok := r.tokens[id]
	if !ok || t.OwnerID != ownerID {
		return ErrTokenNotFound
	}
	t.IsActive = false
	return nil
}

func TestIssueAndVerify(t *testing.T) {
	repo := newFakeTokenRepo()
	svc := NewService(repo)
	ctx := context.Background()

	plaintext, token, err := svc.Issue(ctx, 1, 42, "ci", []string{shared.PermCloseBooks})
	require.NoError(t, err)
	require.True(t, token.IsActive)
	require.Contains(t, plaintext, TokenPrefix)

	actor, err := svc.Verify(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, int64(42), actor.UserID)
	require.Equal(t, int64(1), actor.OwnerID)
	require.True(t, actor.Can(shared.PermCloseBooks))
	require.False(t, actor.Can(shared.PermUndoReconciliation))
	require.NotNil(t, repo.tokens[token.ID].LastUsedAt)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	repo := newFakeTokenRepo()
	svc := NewService(repo)
	ctx := context.Background()

	plaintext, token, err := svc.Issue(ctx, 1, 42, "ci", nil)
	require.NoError(t, err)

	for _, bad := range []string{
		"",
		"blt_",
		"not-a-token",
		TokenPrefix + token.ID.String(),
		TokenPrefix + token.ID.String() + ".wrong-secret",
		TokenPrefix + uuid.NewString() + ".whatever",
	} {
		_, err := svc.Verify(ctx, bad)
		require.ErrorIs(t, err, shared.ErrInvalidCredentials, "token %q", bad)
	}

	_, err = svc.Verify(ctx, plaintext)
	require.NoError(t, err)
}

func TestRevokeDeactivates(t *testing.T) {
	repo := newFakeTokenRepo()
	svc := NewService(repo)
	ctx := context.Background()

	plaintext, token, err := svc.Issue(ctx, 1, 42, "ci", nil)
	require.NoError(t, err)

	otherOwner := shared.NewActor(7, 99)
	require.ErrorIs(t, svc.Revoke(ctx, otherOwner, token.ID), ErrTokenNotFound)

	owner := shared.NewActor(42, 1)
	require.NoError(t, svc.Revoke(ctx, owner, token.ID))

	_, err = svc.Verify(ctx, plaintext)
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
