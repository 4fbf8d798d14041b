package domain

// Identity is who the cart belongs to: a guest (zero value) or an
// authenticated user.
type Identity struct {
	UserID string
}

// Guest is the anonymous identity.
var Guest = Identity{}

// Authenticated returns the identity of userID.
func Authenticated(userID string) Identity {
	return Identity{UserID: userID}
}

// IsAuthenticated reports whether the identity names a user.
func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

func (i Identity) String() string {
	if !i.IsAuthenticated() {
		return "guest"
	}
	return "user:" + i.UserID
}
