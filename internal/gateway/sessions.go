package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	gatewaydomain "github.com/jvcardoso/proteamcare-billing/internal/gateway/domain"
	redis "github.com/redis/go-redis/v9"
)

const (
	keySession     = "billing:checkout:session:%s"
	keySessionLock = "billing:checkout:lock:%s"

	sessionLockTTL = 10 * time.Second

	lockWaitInterval = 200 * time.Millisecond
	lockWaitBudget   = 3 * time.Second
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// SessionStore keeps checkout sessions in redis for their TTL window only.
// Creation is serialized per invoice: while one request holds the lock,
// concurrent requests wait briefly for the winner's session and only
// surface ErrSessionInProgress if none appears within the wait budget.
type SessionStore struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
	}
}

// Ensure returns the active session for the invoice, creating one through
// `create` only when no unexpired session exists.
func (s *SessionStore) Ensure(
	ctx context.Context,
	invoiceID snowflake.ID,
	create func(ctx context.Context) (gatewaydomain.CheckoutSession, error),
) (gatewaydomain.CheckoutSession, error) {
	if existing, err := s.Get(ctx, invoiceID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gatewaydomain.ErrSessionNotFound) {
		return gatewaydomain.CheckoutSession{}, err
	}

	lockKey := fmt.Sprintf(keySessionLock, invoiceID.String())
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKey, token, sessionLockTTL).Result()
	if err != nil {
		return gatewaydomain.CheckoutSession{}, err
	}
	if !ok {
		return s.awaitSession(ctx, invoiceID)
	}
	defer func() {
		_ = s.script.Run(ctx, s.client, []string{lockKey}, token).Err()
	}()

	// Double-check under the lock; the racing winner may have stored one.
	if existing, err := s.Get(ctx, invoiceID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gatewaydomain.ErrSessionNotFound) {
		return gatewaydomain.CheckoutSession{}, err
	}

	session, err := create(ctx)
	if err != nil {
		return gatewaydomain.CheckoutSession{}, err
	}
	if err := s.put(ctx, session); err != nil {
		return gatewaydomain.CheckoutSession{}, err
	}
	return session, nil
}

// awaitSession polls for the session the lock holder is creating. The wait
// is bounded; a holder that dies before storing anything still yields
// ErrSessionInProgress rather than blocking for the full lock TTL.
func (s *SessionStore) awaitSession(ctx context.Context, invoiceID snowflake.ID) (gatewaydomain.CheckoutSession, error) {
	deadline := time.Now().Add(lockWaitBudget)
	ticker := time.NewTicker(lockWaitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return gatewaydomain.CheckoutSession{}, ctx.Err()
		case <-ticker.C:
		}

		session, err := s.Get(ctx, invoiceID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, gatewaydomain.ErrSessionNotFound) {
			return gatewaydomain.CheckoutSession{}, err
		}
		if time.Now().After(deadline) {
			return gatewaydomain.CheckoutSession{}, gatewaydomain.ErrSessionInProgress
		}
	}
}

func (s *SessionStore) Get(ctx context.Context, invoiceID snowflake.ID) (gatewaydomain.CheckoutSession, error) {
	raw, err := s.client.Get(ctx, fmt.Sprintf(keySession, invoiceID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return gatewaydomain.CheckoutSession{}, gatewaydomain.ErrSessionNotFound
		}
		return gatewaydomain.CheckoutSession{}, err
	}

	var session gatewaydomain.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return gatewaydomain.CheckoutSession{}, err
	}
	if time.Now().UTC().After(session.ExpiresAt) || session.Status != gatewaydomain.SessionCreated {
		return gatewaydomain.CheckoutSession{}, gatewaydomain.ErrSessionNotFound
	}
	return session, nil
}

// MarkStatus updates the stored session status without extending its TTL.
func (s *SessionStore) MarkStatus(ctx context.Context, invoiceID snowflake.ID, status gatewaydomain.SessionStatus) error {
	key := fmt.Sprintf(keySession, invoiceID.String())
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return gatewaydomain.ErrSessionNotFound
		}
		return err
	}

	var session gatewaydomain.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return err
	}
	session.Status = status

	encoded, err := json.Marshal(session)
	if err != nil {
		return err
	}
	remaining, err := s.client.TTL(ctx, key).Result()
	if err != nil || remaining <= 0 {
		remaining = time.Minute
	}
	return s.client.Set(ctx, key, encoded, remaining).Err()
}

func (s *SessionStore) put(ctx context.Context, session gatewaydomain.CheckoutSession) error {
	encoded, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 || ttl > s.ttl {
		ttl = s.ttl
	}
	return s.client.Set(ctx, fmt.Sprintf(keySession, session.InvoiceID.String()), encoded, ttl).Err()
}
