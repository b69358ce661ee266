package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Provider is an OAuth identity provider the CMS accepts.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderDiscord Provider = "discord"
)

// ParseProvider returns the provider named s.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderDiscord:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

func (p Provider) loginPath() string { return "/" + string(p) + "-auth/login" }

// Identity is what a provider says about the signed-in user.
type Identity struct {
	Provider Provider
	Subject  string
	Email    string

	// Name is the display name (Google name, Discord global name).
	Name string

	// Username is the provider handle, when it has one.
	Username string

	Avatar string
}

// relayBody is the payload of the CMS provider login endpoint.
func (id Identity) relayBody() map[string]any {
	if id.Provider == ProviderDiscord {
		name := id.Name
		if name == "" {
			name = id.Username
		}
		var avatar any
		if id.Avatar != "" {
			avatar = id.Avatar
		}
		return map[string]any{
			"email":           id.Email,
			"discordId":       id.Subject,
			"username":        name,
			"discordUsername": id.Username,
			"avatar":          avatar,
		}
	}
	return map[string]any{
		"email":    id.Email,
		"googleId": id.Subject,
		"name":     id.Name,
	}
}

var defaultUserInfo = map[Provider]string{
	ProviderGoogle:  "https://www.googleapis.com/oauth2/v3/userinfo",
	ProviderDiscord: "https://discord.com/api/users/@me",
}

const discordAvatarURL = "https://cdn.discordapp.com/avatars/%s/%s.png"

// Verifier reads the user's identity from a provider with an access
// token.
type Verifier struct {
	endpoints map[Provider]string
}

// NewVerifier returns a Verifier using the providers' public userinfo
// endpoints.
func NewVerifier() *Verifier {
	v := &Verifier{endpoints: map[Provider]string{}}
	for p, u := range defaultUserInfo {
		v.endpoints[p] = u
	}
	return v
}

// WithEndpoint overrides the userinfo URL of p.
func (v *Verifier) WithEndpoint(p Provider, url string) *Verifier {
	v.endpoints[p] = url
	return v
}

// Identity fetches the user behind tok from p.
func (v *Verifier) Identity(ctx context.Context, p Provider, tok *oauth2.Token) (Identity, error) {
	endpoint, ok := v.endpoints[p]
	if !ok {
		return Identity{}, fmt.Errorf("unknown provider %q", p)
	}

	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("creating userinfo request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("fetching %s user info: %w", p, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Identity{}, fmt.Errorf("reading %s user info: %w", p, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("failed to get user info from %s: %d - %s",
			p, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	switch p {
	case ProviderDiscord:
		var u struct {
			ID         string `json:"id"`
			Email      string `json:"email"`
			Username   string `json:"username"`
			GlobalName string `json:"global_name"`
			Avatar     string `json:"avatar"`
		}
		if err := json.Unmarshal(body, &u); err != nil {
			return Identity{}, fmt.Errorf("decoding discord user info: %w", err)
		}
		id := Identity{Provider: p, Subject: u.ID, Email: u.Email, Name: u.GlobalName, Username: u.Username}
		if u.Avatar != "" {
			id.Avatar = fmt.Sprintf(discordAvatarURL, u.ID, u.Avatar)
		}
		return id, nil
	default:
		var u struct {
			Sub   string `json:"sub"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(body, &u); err != nil {
			return Identity{}, fmt.Errorf("decoding google user info: %w", err)
		}
		return Identity{Provider: p, Subject: u.Sub, Email: u.Email, Name: u.Name}, nil
	}
}
