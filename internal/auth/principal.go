package auth

import (
	"context"
	"errors"

	"studio-store/internal/domain/session"
	"studio-store/internal/domain/user"
	apperrors "studio-store/pkg/errors"
	"studio-store/pkg/token"
)

// AdminOwner is the owner recorded on projects an administrator saves without
// naming another owner.
const AdminOwner = "admin"

// Principal is the resolved identity behind a request.
type Principal struct {
	Kind    Kind
	UserID  string
	Profile *user.Profile
	Session *session.Session
}

func Anonymous() Principal { return Principal{Kind: KindAnonymous} }

func Admin() Principal { return Principal{Kind: KindAdmin, UserID: AdminOwner} }

func User(sess *session.Session, profile *user.Profile) Principal {
	return Principal{Kind: KindUser, UserID: profile.ID, Profile: profile, Session: sess}
}

func (p Principal) IsAdmin() bool     { return p.Kind == KindAdmin }
func (p Principal) IsAnonymous() bool { return p.Kind == KindAnonymous }

// DisplayName is denormalized into project metadata.
func (p Principal) DisplayName() string {
	if p.Profile != nil && p.Profile.Name != "" {
		return p.Profile.Name
	}
	return p.UserID
}

// CanRead allows administrators, the owner, and anyone for unowned resources.
func (p Principal) CanRead(owner string) bool {
	if p.IsAdmin() || owner == "" {
		return true
	}
	return p.Kind == KindUser && p.UserID == owner
}

// CanWrite allows administrators and the owner. An authenticated user may
// also claim an unowned resource.
func (p Principal) CanWrite(owner string) bool {
	switch p.Kind {
	case KindAdmin:
		return true
	case KindUser:
		return owner == "" || owner == p.UserID
	default:
		return false
	}
}

// SessionResolver is implemented by identity.Service.
type SessionResolver interface {
	ResolveSession(ctx context.Context, id string) (*session.Session, *user.Profile, error)
}

// Gate resolves the principal of a request from its credentials.
type Gate struct {
	adminSecret string
	sessions    SessionResolver
}

// NewGate builds a gate. An empty adminSecret disables administrator access.
func NewGate(adminSecret string, sessions SessionResolver) *Gate {
	return &Gate{adminSecret: adminSecret, sessions: sessions}
}

// Resolve checks the administrator secret first and the session second. A
// missing or stale session yields the anonymous principal; an expired identity
// and store failures are returned as errors.
func (g *Gate) Resolve(ctx context.Context, adminSecret, sessionID string) (Principal, error) {
	if g.adminSecret != "" && adminSecret != "" && token.Equal(adminSecret, g.adminSecret) {
		return Admin(), nil
	}

	if sessionID == "" || g.sessions == nil {
		return Anonymous(), nil
	}

	sess, profile, err := g.sessions.ResolveSession(ctx, sessionID)
	switch {
	case err == nil:
		return User(sess, profile), nil
	case errors.Is(err, apperrors.ErrUnauthorized):
		return Anonymous(), nil
	default:
		return Anonymous(), err
	}
}
