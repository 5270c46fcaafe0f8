package sessioncache

import (
	"context"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"ugc-maroc-backend/internal/crypto"
	"ugc-maroc-backend/internal/kv"
	"ugc-maroc-backend/internal/models"
	"ugc-maroc-backend/internal/store"
)

const keyPrefix = "principal:"

// DefaultTTL is how long cached principal data stays valid.
const DefaultTTL = time.Hour

// cachedPrincipal is the stored shape. The password hash is never cached.
type cachedPrincipal struct {
	ID          uuid.UUID       `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name"`
	Role        models.UserRole `json:"role"`
}

// Principals caches decoded-and-validated principal data keyed by user id, so
// authenticated requests skip the user-row round trip within the TTL window.
// This is a cache, not a security check: the JWT signature is verified
// upstream on every request regardless of what is cached here.
type Principals struct {
	cache kv.Store
	users store.Store
	ttl   time.Duration

	// aead, when set, encrypts entries so principal PII never sits in
	// plaintext in the on-disk store.
	aead cipher.AEAD
}

// New creates a principal cache. A non-positive ttl falls back to DefaultTTL.
func New(cache kv.Store, users store.Store, ttl time.Duration) *Principals {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Principals{cache: cache, users: users, ttl: ttl}
}

// WithEncryption makes the cache encrypt entries at rest with aead.
func (p *Principals) WithEncryption(aead cipher.AEAD) *Principals {
	p.aead = aead
	return p
}

// Peek returns the cached principal, or nil on any miss or cache failure.
// It never touches the relational store and never fails a request.
func (p *Principals) Peek(ctx context.Context, userID uuid.UUID) *models.User {
	value, err := p.cache.Get(ctx, keyPrefix+userID.String())
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			log.Printf("WARN [SessionCache] Peek: cache read failed for %s, falling through: %v", userID, err)
		}
		return nil
	}

	if p.aead != nil {
		value, err = crypto.Decrypt(p.aead, value)
		if err != nil {
			// Wrong key or tampered entry; either way the relational store
			// is the fallback.
			log.Printf("WARN [SessionCache] Peek: decrypt failed for %s, falling through: %v", userID, err)
			return nil
		}
	}

	var cached cachedPrincipal
	if err := json.Unmarshal(value, &cached); err != nil {
		log.Printf("WARN [SessionCache] Peek: corrupt principal entry for %s, falling through: %v", userID, err)
		return nil
	}
	return &models.User{
		ID:          cached.ID,
		Email:       cached.Email,
		DisplayName: cached.DisplayName,
		Role:        cached.Role,
	}
}

// Load returns the principal, consulting the cache first and populating it
// after a relational lookup. Cache failures degrade to the uncached path;
// only the relational lookup itself can fail the call.
func (p *Principals) Load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if user := p.Peek(ctx, userID); user != nil {
		return user, nil
	}

	user, err := p.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading principal %s: %w", userID, err)
	}
	p.populate(ctx, user)
	return user, nil
}

// Invalidate drops the cached entry for a user, for principal-mutating
// operations.
func (p *Principals) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := p.cache.Delete(ctx, keyPrefix+userID.String()); err != nil {
		log.Printf("WARN [SessionCache] Invalidate: delete failed for %s: %v", userID, err)
	}
}

func (p *Principals) populate(ctx context.Context, user *models.User) {
	value, err := json.Marshal(cachedPrincipal{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	})
	if err != nil {
		log.Printf("WARN [SessionCache] populate: marshal failed for %s: %v", user.ID, err)
		return
	}
	if p.aead != nil {
		value, err = crypto.Encrypt(p.aead, value)
		if err != nil {
			log.Printf("WARN [SessionCache] populate: encrypt failed for %s: %v", user.ID, err)
			return
		}
	}
	if err := p.cache.Set(ctx, keyPrefix+user.ID.String(), value, p.ttl); err != nil {
		log.Printf("WARN [SessionCache] populate: cache write failed for %s: %v", user.ID, err)
	}
}
