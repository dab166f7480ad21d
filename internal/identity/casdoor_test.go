package identity

import (
	"net/url"
	"testing"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithState(t *testing.T) {
	signin := "https://id.learnio.dev/login/oauth/authorize?client_id=abc&response_type=code&redirect_uri=x&scope=read&state=learnio-portal"

	got, err := url.Parse(withState(signin, "nonce-123"))
	require.NoError(t, err)
	assert.Equal(t, "nonce-123", got.Query().Get("state"))
	assert.Equal(t, "abc", got.Query().Get("client_id"))
}

func TestClaimsToIdentity(t *testing.T) {
	ident, err := claimsToIdentity(&casdoorsdk.User{
		Id:     "u-1",
		Name:   "ana",
		Email:  " Ana@Learnio.dev ",
		Avatar: "https://img/ana.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@learnio.dev", ident.Email)
	assert.Equal(t, "ana", ident.DisplayName, "falls back to the account name")
	assert.Equal(t, "u-1", ident.Subject)

	_, err = claimsToIdentity(&casdoorsdk.User{Name: "ghost"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccountName(t *testing.T) {
	assert.Equal(t, "ana_b_at_learnio_dev", accountName("ana+b@learnio.dev"))
}
