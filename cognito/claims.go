package cognito

import (
	"github.com/golang-jwt/jwt/v5"
)

// DefaultProvider is the provider name recorded for users who signed up
// directly with the user pool rather than through a federated identity.
const DefaultProvider = "Cognito"

// Identity describes one entry of the "identities" claim Cognito adds for
// federated logins (Google, Facebook, ...).
type Identity struct {
	ProviderName string `json:"providerName"`
	ProviderType string `json:"providerType"`
	UserID       string `json:"userId"`
	Primary      string `json:"primary"`
}

// IDTokenClaims is the typed claim set of a Cognito ID token. The required
// claim set is fixed here so missing-field handling lives at the verifier
// and synchronizer boundaries instead of scattered map lookups downstream.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email           string     `json:"email"`
	EmailVerified   bool       `json:"email_verified"`
	Name            string     `json:"name"`
	Picture         string     `json:"picture"`
	CognitoUsername string     `json:"cognito:username"`
	Identities      []Identity `json:"identities"`
	TokenUse        string     `json:"token_use"`
	AuthTime        int64      `json:"auth_time"`
}

// Sub returns the subject identifier, the stable Cognito user ID.
func (c *IDTokenClaims) Sub() string {
	return c.Subject
}

// Provider returns the identity provider the user authenticated with:
// the first entry of the identities claim for federated logins, or
// DefaultProvider for native user-pool accounts.
func (c *IDTokenClaims) Provider() string {
	if len(c.Identities) > 0 && c.Identities[0].ProviderName != "" {
		return c.Identities[0].ProviderName
	}
	return DefaultProvider
}
