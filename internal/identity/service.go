// Package identity keeps user profiles and login sessions in the key-value store.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"studio-store/internal/domain/session"
	"studio-store/internal/domain/user"
	"studio-store/internal/storage"
	apperrors "studio-store/pkg/errors"
	"studio-store/pkg/logger"
	"studio-store/pkg/token"
	"studio-store/pkg/validator"
)

const (
	DefaultUserValidity    = 30 * 24 * time.Hour
	DefaultSessionValidity = 7 * 24 * time.Hour

	msgIdentityExpired  = "account access has expired"
	msgSessionNotFound  = "session not found or expired"
	msgSessionUserGone  = "session owner no longer exists"
	msgUserNotFoundFmt  = "user %s not found"
	msgExpiryRequired   = "expiresAt is required"
	errDecodeRecordFmt  = "failed to decode %s: %w"
	errEncodeRecordFmt  = "failed to encode %s: %w"
	errCreateSessionFmt = "failed to create session id: %w"
)

type Config struct {
	UserValidity    time.Duration
	SessionValidity time.Duration
}

type Service struct {
	kv              storage.KV
	userValidity    time.Duration
	sessionValidity time.Duration
	now             func() time.Time
}

func NewService(kv storage.KV, cfg Config) *Service {
	if cfg.UserValidity <= 0 {
		cfg.UserValidity = DefaultUserValidity
	}
	if cfg.SessionValidity <= 0 {
		cfg.SessionValidity = DefaultSessionValidity
	}
	return &Service{
		kv:              kv,
		userValidity:    cfg.UserValidity,
		sessionValidity: cfg.SessionValidity,
		now:             time.Now,
	}
}

// Authenticate records a successful external login and opens a session for it.
// An existing profile keeps its first login and expiry; an expired profile is
// refused before anything is written.
func (s *Service) Authenticate(ctx context.Context, ident user.Identity) (*user.Profile, *session.Session, error) {
	if err := validator.UserID(ident.ID); err != nil {
		return nil, nil, apperrors.BadRequest(err.Error())
	}
	if err := validator.Email(ident.Email); err != nil {
		return nil, nil, apperrors.BadRequest(err.Error())
	}

	now := s.now().UTC()
	var profile user.Profile

	err := s.kv.Update(ctx, storage.UserKey(ident.ID), 0, func(current []byte, exists bool) ([]byte, error) {
		profile = user.Profile{}
		if exists {
			if err := json.Unmarshal(current, &profile); err != nil {
				return nil, fmt.Errorf(errDecodeRecordFmt, storage.UserKey(ident.ID), err)
			}
			if profile.Expired(now) {
				return nil, apperrors.IdentityExpired(msgIdentityExpired)
			}
		} else {
			profile.ID = ident.ID
			profile.FirstLoginAt = now
		}

		if profile.FirstLoginAt.IsZero() {
			profile.FirstLoginAt = now
		}
		if profile.ExpiresAt.IsZero() {
			profile.ExpiresAt = now.Add(s.userValidity)
		}
		profile.Email = ident.Email
		profile.Name = ident.Name
		profile.Picture = ident.Picture
		profile.LastLoginAt = now

		return json.Marshal(&profile)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrIdentityExpired) {
			log.Printf("login refused for expired user %s", ident.ID)
		}
		return nil, nil, err
	}

	sess, err := s.CreateSession(ctx, &profile)
	if err != nil {
		return nil, nil, err
	}

	return &profile, sess, nil
}

// CreateSession stores a new session for profile. Its validity is independent
// of the profile's own expiry.
func (s *Service) CreateSession(ctx context.Context, profile *user.Profile) (*session.Session, error) {
	id, err := token.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf(errCreateSessionFmt, err)
	}

	now := s.now().UTC()
	sess := &session.Session{
		ID:        id,
		UserID:    profile.ID,
		Email:     profile.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionValidity),
	}

	value, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf(errEncodeRecordFmt, storage.SessionKey(id), err)
	}
	if err := s.kv.Put(ctx, storage.SessionKey(id), value, s.sessionValidity); err != nil {
		return nil, err
	}

	return sess, nil
}

// ResolveSession returns the live session for id together with its owner. The
// stored expiry is checked even though the store also expires the key.
func (s *Service) ResolveSession(ctx context.Context, id string) (*session.Session, *user.Profile, error) {
	if !token.IsSessionID(id) {
		return nil, nil, apperrors.Unauthorized(msgSessionNotFound)
	}

	value, err := s.kv.Get(ctx, storage.SessionKey(id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, apperrors.Unauthorized(msgSessionNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	var sess session.Session
	if err := json.Unmarshal(value, &sess); err != nil {
		return nil, nil, fmt.Errorf(errDecodeRecordFmt, storage.SessionKey(id), err)
	}

	now := s.now()
	if sess.Expired(now) {
		if err := s.kv.Delete(ctx, storage.SessionKey(id)); err != nil {
			log.Printf("failed to drop expired session: %s", logger.SanitizeLogMessage(err.Error()))
		}
		return nil, nil, apperrors.Unauthorized(msgSessionNotFound)
	}

	profile, err := s.GetUser(ctx, sess.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, apperrors.Unauthorized(msgSessionUserGone)
	}
	if err != nil {
		return nil, nil, err
	}
	if profile.Expired(now) {
		return nil, nil, apperrors.IdentityExpired(msgIdentityExpired)
	}

	return &sess, profile, nil
}

// DestroySession is idempotent.
func (s *Service) DestroySession(ctx context.Context, id string) error {
	if !token.IsSessionID(id) {
		return nil
	}
	return s.kv.Delete(ctx, storage.SessionKey(id))
}

func (s *Service) GetUser(ctx context.Context, id string) (*user.Profile, error) {
	value, err := s.kv.Get(ctx, storage.UserKey(id))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf(msgUserNotFoundFmt, id))
	}
	if err != nil {
		return nil, err
	}

	var profile user.Profile
	if err := json.Unmarshal(value, &profile); err != nil {
		return nil, fmt.Errorf(errDecodeRecordFmt, storage.UserKey(id), err)
	}
	return &profile, nil
}

// ListUsers returns every profile, most recent login first.
func (s *Service) ListUsers(ctx context.Context) ([]*user.Profile, error) {
	keys, err := s.kv.Keys(ctx, storage.PrefixUser)
	if err != nil {
		return nil, err
	}

	users := make([]*user.Profile, 0, len(keys))
	for _, key := range keys {
		profile, err := s.GetUser(ctx, storage.IDFromKey(storage.PrefixUser, key))
		if errors.Is(err, apperrors.ErrNotFound) {
			// deleted between scan and read
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, profile)
	}

	sort.Slice(users, func(i, j int) bool {
		if !users[i].LastLoginAt.Equal(users[j].LastLoginAt) {
			return users[i].LastLoginAt.After(users[j].LastLoginAt)
		}
		return users[i].ID < users[j].ID
	})

	return users, nil
}

// DeleteUser removes the profile. Sessions it still owns stop resolving because
// ResolveSession requires the owner to exist.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	return s.kv.Delete(ctx, storage.UserKey(id))
}

func (s *Service) UpdateExpiry(ctx context.Context, id string, input user.UpdateExpiryInput) (*user.Profile, error) {
	if input.ExpiresAt.IsZero() {
		return nil, apperrors.BadRequest(msgExpiryRequired)
	}

	var profile user.Profile
	err := s.kv.Update(ctx, storage.UserKey(id), 0, func(current []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, apperrors.NotFound(fmt.Sprintf(msgUserNotFoundFmt, id))
		}
		profile = user.Profile{}
		if err := json.Unmarshal(current, &profile); err != nil {
			return nil, fmt.Errorf(errDecodeRecordFmt, storage.UserKey(id), err)
		}

		profile.ExpiresAt = input.ExpiresAt.UTC()
		if input.CustomModels != nil {
			profile.CustomModels = input.CustomModels
		}
		return json.Marshal(&profile)
	})
	if err != nil {
		return nil, err
	}

	return &profile, nil
}
