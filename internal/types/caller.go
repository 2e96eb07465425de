package types

// Caller is the subject of an access decision: either an anonymous visitor or
// a signed-in user with their paid tiers. The zero value is Anonymous.
type Caller struct {
	userID  string
	isPro   bool
	isUltra bool
}

// Anonymous returns a caller with no session.
func Anonymous() Caller {
	return Caller{}
}

// Authenticated returns a signed-in caller. Ultra always implies Pro. An
// empty userID yields Anonymous.
func Authenticated(userID string, isPro, isUltra bool) Caller {
	if userID == "" {
		return Anonymous()
	}
	return Caller{userID: userID, isPro: isPro || isUltra, isUltra: isUltra}
}

// CallerFromEntitlement builds an authenticated caller from a snapshot.
func CallerFromEntitlement(e *Entitlement) Caller {
	if e == nil {
		return Anonymous()
	}
	return Authenticated(e.UserID, e.IsProUser, e.IsUltraUser)
}

func (c Caller) IsAuthenticated() bool { return c.userID != "" }
func (c Caller) UserID() string        { return c.userID }
func (c Caller) IsPro() bool           { return c.isPro }
func (c Caller) IsUltra() bool         { return c.isUltra }
