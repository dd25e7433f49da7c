// Package auth holds password-reset verification codes.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeInvalid = errors.New("verification code is invalid or expired")
	ErrEmptyEmail  = errors.New("email is required")
)

// MaxAttempts is how many wrong guesses a pending code survives.
const MaxAttempts = 5

// ResetCodes stores one pending code per email with a fixed TTL.
// Issuing a new code replaces the previous one and resets the attempt count;
// a verified code is consumed, and MaxAttempts wrong guesses burn it.
type ResetCodes struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResetCodes(client *redis.Client, ttl time.Duration) *ResetCodes {
	return &ResetCodes{client: client, ttl: ttl}
}

func (r *ResetCodes) TTL() time.Duration { return r.ttl }

// Issue generates a six digit code for email.
func (r *ResetCodes) Issue(ctx context.Context, email string) (string, error) {
	codeK, attemptsK, err := keys(email)
	if err != nil {
		return "", err
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, codeK, code, r.ttl)
		pipe.Del(ctx, attemptsK)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store reset code: %w", err)
	}
	return code, nil
}

// verifyScript compares, counts and consumes atomically.
// Returns 1 on match, 0 on mismatch, -1 when no code is pending.
var verifyScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
  return -1
end
if stored == ARGV[1] then
  redis.call("DEL", KEYS[1], KEYS[2])
  return 1
end
local n = redis.call("INCR", KEYS[2])
if n == 1 then
  redis.call("PEXPIRE", KEYS[2], ARGV[3])
end
if n >= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1], KEYS[2])
end
return 0
`)

// Verify consumes the code if it matches. A mismatch counts against the
// pending code, which is discarded after MaxAttempts failures.
func (r *ResetCodes) Verify(ctx context.Context, email, code string) error {
	codeK, attemptsK, err := keys(email)
	if err != nil {
		return err
	}

	res, err := verifyScript.Run(ctx, r.client,
		[]string{codeK, attemptsK},
		strings.TrimSpace(code), MaxAttempts, r.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("verify reset code: %w", err)
	}
	if res != 1 {
		return ErrCodeInvalid
	}
	return nil
}

func keys(email string) (code, attempts string, err error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return "", "", ErrEmptyEmail
	}
	return "reset:code:" + e, "reset:attempts:" + e, nil
}
