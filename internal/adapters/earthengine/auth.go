package earthengine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/google"

	"github.com/jobrunner/scenekit/internal/domain"
)

// Authentication types.
const (
	AuthGoogle            = "google"
	AuthClientCredentials = "client_credentials"
	AuthNone              = "none"
)

// DefaultScopes are requested when AuthConfig.Scopes is empty.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// AuthConfig selects how requests are authorized.
type AuthConfig struct {
	Type            string   // google, client_credentials, none
	CredentialsFile string   // Service account key for google; empty uses application default credentials
	ClientID        string   // client_credentials only
	ClientSecret    string   // client_credentials only
	TokenURL        string   // client_credentials only
	Scopes          []string // OAuth scopes
}

// NewHTTPClient returns an HTTP client that authorizes every request.
func NewHTTPClient(ctx context.Context, cfg AuthConfig, timeout time.Duration) (*http.Client, error) {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	var client *http.Client
	switch cfg.Type {
	case "", AuthGoogle:
		creds, err := googleCredentials(ctx, cfg.CredentialsFile, scopes)
		if err != nil {
			return nil, err
		}
		client = oauth2.NewClient(ctx, creds.TokenSource)

	case AuthClientCredentials:
		if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "" {
			return nil, &domain.ConfigError{
				Field:   "earthengine.auth",
				Message: "client_id, client_secret and token_url are required for client_credentials",
			}
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       scopes,
		}
		client = cc.Client(ctx)

	case AuthNone:
		client = &http.Client{}

	default:
		return nil, &domain.ConfigError{
			Field:   "earthengine.auth.type",
			Message: fmt.Sprintf("unknown auth type %q", cfg.Type),
		}
	}

	client.Timeout = timeout
	return client, nil
}

func googleCredentials(ctx context.Context, path string, scopes []string) (*google.Credentials, error) {
	if path == "" {
		creds, err := google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("finding default credentials: %w", err)
		}
		return creds, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	return creds, nil
}
