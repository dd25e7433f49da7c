package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupResetCodes(t *testing.T) (*miniredis.Miniredis, *ResetCodes) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewResetCodes(client, 10*time.Minute)
}

func TestResetCodes_IssueAndVerify(t *testing.T) {
	mr, codes := setupResetCodes(t)
	ctx := context.Background()

	code, err := codes.Issue(ctx, " Jane@Clinic.org ")
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, 10*time.Minute, mr.TTL("reset:code:jane@clinic.org"))

	require.NoError(t, codes.Verify(ctx, "jane@clinic.org", code))

	// single use
	assert.ErrorIs(t, codes.Verify(ctx, "jane@clinic.org", code), ErrCodeInvalid)
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestResetCodes_WrongCodeKeepsPending(t *testing.T) {
	mr, codes := setupResetCodes(t)
	ctx := context.Background()

	code, err := codes.Issue(ctx, "sam@clinic.org")
	require.NoError(t, err)

	for i := 0; i < MaxAttempts-1; i++ {
		assert.ErrorIs(t, codes.Verify(ctx, "sam@clinic.org", wrongCode(code)), ErrCodeInvalid)
	}
	assert.Equal(t, 10*time.Minute, mr.TTL("reset:attempts:sam@clinic.org"))
	assert.NoError(t, codes.Verify(ctx, "sam@clinic.org", code))
	assert.False(t, mr.Exists("reset:attempts:sam@clinic.org"))
}

func TestResetCodes_LockedAfterMaxAttempts(t *testing.T) {
	mr, codes := setupResetCodes(t)
	ctx := context.Background()

	code, err := codes.Issue(ctx, "ana@clinic.org")
	require.NoError(t, err)

	for i := 0; i < MaxAttempts; i++ {
		assert.ErrorIs(t, codes.Verify(ctx, "ana@clinic.org", wrongCode(code)), ErrCodeInvalid)
	}

	assert.False(t, mr.Exists("reset:code:ana@clinic.org"))
	assert.ErrorIs(t, codes.Verify(ctx, "ana@clinic.org", code), ErrCodeInvalid)
}

func TestResetCodes_ReissueClearsAttempts(t *testing.T) {
	mr, codes := setupResetCodes(t)
	ctx := context.Background()

	first, err := codes.Issue(ctx, "bo@clinic.org")
	require.NoError(t, err)
	for i := 0; i < MaxAttempts-1; i++ {
		_ = codes.Verify(ctx, "bo@clinic.org", wrongCode(first))
	}

	second, err := codes.Issue(ctx, "bo@clinic.org")
	require.NoError(t, err)
	assert.False(t, mr.Exists("reset:attempts:bo@clinic.org"))

	// a full budget again: one miss no longer burns the code
	assert.ErrorIs(t, codes.Verify(ctx, "bo@clinic.org", wrongCode(second)), ErrCodeInvalid)
	assert.NoError(t, codes.Verify(ctx, "bo@clinic.org", second))
}

func TestResetCodes_StaleCodeRejectedAfterReissue(t *testing.T) {
	_, codes := setupResetCodes(t)
	ctx := context.Background()

	first, err := codes.Issue(ctx, "eve@clinic.org")
	require.NoError(t, err)
	second, err := codes.Issue(ctx, "eve@clinic.org")
	require.NoError(t, err)
	if first == second {
		t.Skip("identical codes drawn")
	}

	assert.ErrorIs(t, codes.Verify(ctx, "eve@clinic.org", first), ErrCodeInvalid)
	assert.NoError(t, codes.Verify(ctx, "eve@clinic.org", second))
}

func TestResetCodes_Expires(t *testing.T) {
	mr, codes := setupResetCodes(t)
	ctx := context.Background()

	code, err := codes.Issue(ctx, "lee@clinic.org")
	require.NoError(t, err)

	mr.FastForward(11 * time.Minute)

	assert.ErrorIs(t, codes.Verify(ctx, "lee@clinic.org", code), ErrCodeInvalid)
}

func TestResetCodes_ReissueReplaces(t *testing.T) {
	mr, codes := setupResetCodes(t)
	ctx := context.Background()

	_, err := codes.Issue(ctx, "kim@clinic.org")
	require.NoError(t, err)
	second, err := codes.Issue(ctx, "kim@clinic.org")
	require.NoError(t, err)

	stored, err := mr.Get("reset:code:kim@clinic.org")
	require.NoError(t, err)
	assert.Equal(t, second, stored)
}

func TestResetCodes_EmptyEmail(t *testing.T) {
	_, codes := setupResetCodes(t)

	_, err := codes.Issue(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyEmail)
}
