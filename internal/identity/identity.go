package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrAccountExists  = errors.New("account already exists")
	ErrExchangeFailed = errors.New("authorization code exchange failed")
)

// Identity is what the identity provider knows about a signed-in person
type Identity struct {
	Subject     string `json:"subject"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
}

// Token is the result of a successful sign-in
type Token struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
	Identity    Identity  `json:"identity"`
}

// Account describes a new email/password account
type Account struct {
	Email       string
	Password    string
	DisplayName string
	PhotoURL    string
}

// Provider is the external identity collaborator. Sign-out is purely local.
type Provider interface {
	// SignInURL is the hosted sign-in page; the provider echoes state back to the callback
	SignInURL(redirectURI, state string) string
	Exchange(ctx context.Context, code, state string) (*Token, error)
	Verify(ctx context.Context, accessToken string) (*Identity, error)
	CreateAccount(ctx context.Context, account Account) error
	UpdateProfile(ctx context.Context, email, displayName, photoURL string) error
}
