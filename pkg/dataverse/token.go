package dataverse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const loginHost = "https://login.microsoftonline.com"

// Token is the bearer credential for one task run. It lives in memory only
// and must be masked in any log output.
type Token struct {
	AccessToken string
	ExpiresIn   int64
}

// TokenOptions carries test overrides; zero value is fine for production use.
type TokenOptions struct {
	// Endpoint replaces the tenant's v2.0 token endpoint.
	Endpoint string
	// HTTPClient replaces the client used for the token request.
	HTTPClient *http.Client
}

// NormalizeResourceURL forces an https scheme and strips any trailing slash
// so the OAuth scope and all Web API URLs are built consistently.
func NormalizeResourceURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimSuffix(u, "/")
	if u == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(u, "https://"):
	case strings.HasPrefix(u, "http://"):
		u = "https://" + strings.TrimPrefix(u, "http://")
	default:
		u = "https://" + u
	}
	return u
}

// AcquireToken performs an OAuth2 client-credentials grant against the
// tenant's token endpoint with scope "<resource>/.default".
func AcquireToken(ctx context.Context, tenantID, clientID, clientSecret, resourceURL string, opts TokenOptions) (*Token, error) {
	switch {
	case strings.TrimSpace(tenantID) == "":
		return nil, &AuthError{Message: "tenant id is empty"}
	case strings.TrimSpace(clientID) == "":
		return nil, &AuthError{Message: "client id is empty"}
	case strings.TrimSpace(clientSecret) == "":
		return nil, &AuthError{Message: "client secret is empty"}
	case strings.TrimSpace(resourceURL) == "":
		return nil, &AuthError{Message: "Dataverse URL is empty"}
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginHost, tenantID)
	}

	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     endpoint,
		Scopes:       []string{NormalizeResourceURL(resourceURL) + "/.default"},
	}

	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}

	tok, err := conf.Token(ctx)
	if err != nil {
		return nil, authErrorFrom(err)
	}

	expiresIn := int64(0)
	if !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return &Token{AccessToken: tok.AccessToken, ExpiresIn: expiresIn}, nil
}

func authErrorFrom(err error) *AuthError {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" {
			var body struct {
				Error string `json:"error"`
			}
			_ = json.Unmarshal(re.Body, &body)
			code = body.Error
		}
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &AuthError{Status: status, OAuthCode: code, Message: "token endpoint rejected the request"}
	}
	return &AuthError{Message: err.Error()}
}
