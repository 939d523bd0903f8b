package tickets

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidTicket = errors.New("invalid join ticket")

// Claims carried by a join ticket. IssuedNano gives sub-second ordering
// against revocation marks.
type Claims struct {
	DocumentID string `json:"doc"`
	IssuedNano int64  `json:"iatn"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies short-lived HS256 join tickets. Revocation marks
// live in Redis under "ticket:revoked:<docID>" when a client is configured,
// otherwise in process memory.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	client *redis.Client
	now    func() time.Time

	mu      sync.RWMutex
	revoked map[string]int64
}

// NewIssuer returns an Issuer. An empty secret is replaced by a random
// per-process key, so tickets do not survive restarts.
func NewIssuer(secret string, ttl time.Duration, client *redis.Client) *Issuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("tickets: crypto/rand failed: " + err.Error())
		}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: key, ttl: ttl, client: client, now: time.Now, revoked: map[string]int64{}}
}

func revokedKey(documentID string) string { return "ticket:revoked:" + documentID }

// Issue creates a ticket for the document.
func (i *Issuer) Issue(documentID string) (string, time.Duration, error) {
	now := i.now()
	claims := Claims{
		DocumentID: documentID,
		IssuedNano: now.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   documentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := jt.SignedString(i.secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign ticket: %w", err)
	}
	return s, i.ttl, nil
}

// Verify checks signature, expiry, target document and revocation.
func (i *Issuer) Verify(ctx context.Context, raw, documentID string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if claims.DocumentID != documentID {
		return nil, fmt.Errorf("%w: issued for another document", ErrInvalidTicket)
	}
	revokedAt, err := i.revokedAt(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if revokedAt != 0 && claims.IssuedNano <= revokedAt {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidTicket)
	}
	return &claims, nil
}

// RevokeDocument invalidates every ticket issued for the document so far.
func (i *Issuer) RevokeDocument(ctx context.Context, documentID string) error {
	at := i.now().UnixNano()
	if i.client == nil {
		i.mu.Lock()
		i.revoked[documentID] = at
		i.mu.Unlock()
		return nil
	}
	// the mark only needs to outlive the longest ticket
	return i.client.Set(ctx, revokedKey(documentID), strconv.FormatInt(at, 10), i.ttl+time.Minute).Err()
}

func (i *Issuer) revokedAt(ctx context.Context, documentID string) (int64, error) {
	if i.client == nil {
		i.mu.RLock()
		defer i.mu.RUnlock()
		return i.revoked[documentID], nil
	}
	v, err := i.client.Get(ctx, revokedKey(documentID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("ticket revocation lookup: %w", err)
	}
	return v, nil
}
