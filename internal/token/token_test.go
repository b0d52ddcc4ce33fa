package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testService(ttl time.Duration) (*Service, *time.Time) {
	now := time.Now()
	s := NewService("test-secret", ttl)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestIssueAndVerify(t *testing.T) {
	s, _ := testService(5 * time.Minute)
	id := Identity{
		Email:           "alice@example.com",
		WalletID:        "11111111-1111-1111-1111-111111111111",
		WalletIDEd25519: "22222222-2222-2222-2222-222222222222",
	}

	tok, err := s.Issue(id)
	require.NoError(t, err)

	got, err := s.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, id, *got)
}

func TestVerifyRejectsRotationWindowElapsed(t *testing.T) {
	s, now := testService(5 * time.Minute)
	tok, err := s.Issue(Identity{Email: "alice@example.com"})
	require.NoError(t, err)

	// Just inside the window.
	*now = now.Add(4 * time.Minute)
	_, err = s.Verify(tok)
	require.NoError(t, err)

	// Past it.
	*now = now.Add(2 * time.Minute)
	_, err = s.Verify(tok)
	require.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s, _ := testService(5 * time.Minute)
	tok, err := s.Issue(Identity{Email: "alice@example.com"})
	require.NoError(t, err)

	other := NewService("other-secret", 5*time.Minute)
	_, err = other.Verify(tok)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s, _ := testService(5 * time.Minute)
	_, err := s.Verify("not.a.token")
	require.Error(t, err)
}

func TestRotateExtendsWindow(t *testing.T) {
	s, now := testService(5 * time.Minute)
	id := Identity{Email: "alice@example.com", WalletID: "w1"}

	tok, err := s.Issue(id)
	require.NoError(t, err)

	*now = now.Add(4 * time.Minute)
	got, err := s.Verify(tok)
	require.NoError(t, err)

	rotated, err := s.Rotate(*got)
	require.NoError(t, err)

	// The old token dies at its window; the rotated one lives on.
	*now = now.Add(3 * time.Minute)
	_, err = s.Verify(tok)
	require.Error(t, err)
	got, err = s.Verify(rotated)
	require.NoError(t, err)
	require.Equal(t, "w1", got.WalletID)
}
