package entity

// User is the caller-supplied identity of the session
type User struct {
	ID     string
	Name   string
	Avatar string
}

// DisplayName falls back to the id when the user has no name
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// IdentityProvider resolves the current identity. ok is false when nobody is signed in.
type IdentityProvider interface {
	CurrentUser() (user User, ok bool)
}
