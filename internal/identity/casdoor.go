package identity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/learnio/learnio/internal/config"
	"github.com/learnio/learnio/internal/models"
)

// CasdoorProvider talks to a Casdoor instance
type CasdoorProvider struct {
	client *casdoorsdk.Client
	config config.CasdoorConfig
}

func NewCasdoorProvider(cfg config.CasdoorConfig) *CasdoorProvider {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)

	return &CasdoorProvider{
		client: client,
		config: cfg,
	}
}

func (p *CasdoorProvider) SignInURL(redirectURI, state string) string {
	return withState(p.client.GetSigninUrl(redirectURI), state)
}

func withState(signinURL, state string) string {
	u, err := url.Parse(signinURL)
	if err != nil {
		return signinURL
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *CasdoorProvider) Exchange(ctx context.Context, code, state string) (*Token, error) {
	token, err := p.client.GetOAuthToken(code, state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	ident, err := p.Verify(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Token{
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
		Identity:    *ident,
	}, nil
}

func (p *CasdoorProvider) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := p.client.ParseJwtToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, ErrInvalidToken
	}
	return claimsToIdentity(&claims.User)
}

func claimsToIdentity(user *casdoorsdk.User) (*Identity, error) {
	email := models.NormalizeEmail(user.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: token carries no email", ErrInvalidToken)
	}

	name := strings.TrimSpace(user.DisplayName)
	if name == "" {
		name = user.Name
	}

	return &Identity{
		Subject:     user.Id,
		Email:       email,
		DisplayName: name,
		PhotoURL:    user.Avatar,
	}, nil
}

func (p *CasdoorProvider) CreateAccount(ctx context.Context, account Account) error {
	email := models.NormalizeEmail(account.Email)

	existing, err := p.client.GetUserByEmail(email)
	if err == nil && existing != nil && existing.Name != "" {
		return ErrAccountExists
	}

	user := &casdoorsdk.User{
		Owner:             p.config.Organization,
		Name:              accountName(email),
		CreatedTime:       time.Now().UTC().Format(time.RFC3339),
		Type:              "normal-user",
		Password:          account.Password,
		DisplayName:       account.DisplayName,
		Avatar:            account.PhotoURL,
		Email:             email,
		SignupApplication: p.config.Application,
	}

	ok, err := p.client.AddUser(user)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if !ok {
		return ErrAccountExists
	}
	return nil
}

func (p *CasdoorProvider) UpdateProfile(ctx context.Context, email, displayName, photoURL string) error {
	user, err := p.client.GetUserByEmail(models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if user == nil {
		return fmt.Errorf("account %s not found", email)
	}

	user.DisplayName = displayName
	user.Avatar = photoURL

	if _, err := p.client.UpdateUser(user); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// accountName derives a Casdoor user name from an email address
func accountName(email string) string {
	r := strings.NewReplacer("@", "_at_", "+", "_", ".", "_")
	return r.Replace(email)
}
