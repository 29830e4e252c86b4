package auth

const (
	ContextKeyPrincipal = "principal"
	// ContextKeyIdentityError holds the expiry error of a session that resolved
	// to the anonymous principal.
	ContextKeyIdentityError = "identity_error"

	// CookieSession carries the session id of an authenticated user.
	CookieSession = "auth_session"
	// HeaderAdminPass carries the shared administrator secret.
	HeaderAdminPass = "X-Admin-Pass"
)

const (
	msgUserNotAuthenticated = "user not authenticated"
	msgAdminRequired        = "administrator access required"
	msgNotOwner             = "principal does not own this resource"
)

type Kind int

const (
	KindAnonymous Kind = iota
	KindUser
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}
