package cart

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

// Owner identifies whose cart is addressed: a signed-in user or a guest
// session. Exactly one of the fields is set.
type Owner struct {
	UserID     *uuid.UUID
	SessionKey string
}

// UserOwner builds an owner for a signed-in user.
func UserOwner(id uuid.UUID) Owner {
	return Owner{UserID: &id}
}

// GuestOwner builds an owner for an anonymous session.
func GuestOwner(sessionKey string) Owner {
	return Owner{SessionKey: strings.TrimSpace(sessionKey)}
}

// ID is the stable string form used in cache keys and logs.
func (o Owner) ID() string {
	if o.UserID != nil {
		return "user:" + o.UserID.String()
	}
	return "session:" + o.SessionKey
}

// IsGuest reports whether the owner is an anonymous session.
func (o Owner) IsGuest() bool {
	return o.UserID == nil
}

// Validate rejects owners with neither or both identities.
func (o Owner) Validate() error {
	hasUser := o.UserID != nil && *o.UserID != uuid.Nil
	hasSession := strings.TrimSpace(o.SessionKey) != ""
	if hasUser == hasSession {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart owner must be a user or a session")
	}
	return nil
}
