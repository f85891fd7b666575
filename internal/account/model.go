package account

import "time"

// Principal is a storefront account. PasswordHash is empty for
// federated-only accounts; Provider/ProviderID are empty for local ones.
type Principal struct {
	ID            string
	Username      string
	Email         string
	FirstName     string
	LastName      string
	PasswordHash  string
	Enabled       bool
	EmailVerified bool
	Provider      string
	ProviderID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Info is the caller-visible projection of a principal. Constructed field
// by field: the password hash must never reach a response body.
type Info struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	EmailVerified bool      `json:"email_verified"`
	Provider      string    `json:"provider,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func infoFrom(p Principal) Info {
	return Info{
		ID:            p.ID,
		Username:      p.Username,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		EmailVerified: p.EmailVerified,
		Provider:      p.Provider,
		CreatedAt:     p.CreatedAt,
	}
}
