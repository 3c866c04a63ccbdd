// Package identity is the collaborator boundary for "who is the current
// user". It is consulted only to gate persistence at stream-completion
// boundaries, never inside the streaming path.
package identity

// User is an authenticated identity
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Provider yields the current user, if any
type Provider interface {
	// CurrentUser returns the current identity. The second return value is
	// false when nobody is signed in.
	CurrentUser() (User, bool)
}

// Static is a fixed-identity provider, for single-user deployments and tests
type Static struct {
	User User
}

// CurrentUser returns the configured user
func (s *Static) CurrentUser() (User, bool) {
	if s.User.ID == "" {
		return User{}, false
	}
	return s.User, true
}

// Anonymous is a provider with nobody signed in
type Anonymous struct{}

// CurrentUser always reports no identity
func (Anonymous) CurrentUser() (User, bool) {
	return User{}, false
}
