package account

import (
	"context"

	"shop-auth/internal/session"
)

// Directory adapts the principal store to session.PrincipalSource so the
// policy engine can authenticate logins without depending on this package.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

func (d *Directory) FindByUsernameOrEmail(ctx context.Context, identifier string) (session.Principal, error) {
	p, err := d.store.FindByUsernameOrEmail(ctx, identifier)
	if err != nil {
		return session.Principal{}, err
	}
	return sessionPrincipal(p), nil
}

func sessionPrincipal(p Principal) session.Principal {
	return session.Principal{
		ID:            p.ID,
		Username:      p.Username,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		PasswordHash:  p.PasswordHash,
		Enabled:       p.Enabled,
		EmailVerified: p.EmailVerified,
	}
}
