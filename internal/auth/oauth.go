package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubUserAPI = "https://api.github.com/user"

// GitHubUser is the part of GitHub's /user response the playground uses.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// GitHubProvider runs the OAuth authorization code flow against GitHub.
type GitHubProvider struct {
	config  *oauth2.Config
	userAPI string
}

func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user"},
			Endpoint:     github.Endpoint,
		},
		userAPI: githubUserAPI,
	}
}

// WithEndpoints points the provider at another OAuth server and user API.
// Used by tests with an httptest server.
func (p *GitHubProvider) WithEndpoints(endpoint oauth2.Endpoint, userAPI string) *GitHubProvider {
	cfg := *p.config
	cfg.Endpoint = endpoint
	return &GitHubProvider{config: &cfg, userAPI: userAPI}
}

// AuthURL is where the browser is sent to approve access. state is echoed
// back to the callback and must match the value stored in the state cookie.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for the GitHub profile of the user.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userAPI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub user API returned status %d", resp.StatusCode)
	}

	var user GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned a user without an id")
	}
	return &user, nil
}
