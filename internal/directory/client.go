// Package directory talks to the external membership directory: the
// authoritative source for guild rosters and player profiles. Every
// outbound call passes through the shared rate limiter so the process
// stays inside the directory's call budget.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/N1K0LAAAA/ImsBridgeServer/internal/telemetry"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/ratelimit"
)

var (
	// ErrGuildFetch marks a failed roster fetch; the caller aborts
	// only that guild's pass.
	ErrGuildFetch = errors.New("directory: guild roster fetch failed")
	// ErrPlayerNotFound is returned when a profile lookup resolves no
	// player. Best-effort callers skip the member that pass.
	ErrPlayerNotFound = errors.New("directory: player not found")
)

// Profile is a player's directory record.
type Profile struct {
	PlayerName    string
	PlayerID      string
	LinkedContact string
}

// Client is the membership directory API client.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// GuildMemberIDs fetches the current member id list for a guild.
func (c *Client) GuildMemberIDs(ctx context.Context, guild string) ([]string, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}

	var body struct {
		Success bool   `json:"success"`
		Cause   string `json:"cause"`
		Guild   struct {
			Members []struct {
				UUID string `json:"uuid"`
			} `json:"members"`
		} `json:"guild"`
	}
	if err := c.get(ctx, "/guild", url.Values{"name": {guild}}, &body); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGuildFetch, guild, err)
	}
	if !body.Success {
		return nil, fmt.Errorf("%w: %s: %s", ErrGuildFetch, guild, body.Cause)
	}

	ids := make([]string, 0, len(body.Guild.Members))
	for _, m := range body.Guild.Members {
		ids = append(ids, m.UUID)
	}
	return ids, nil
}

// PlayerProfile fetches a player's display name and linked contact.
func (c *Client) PlayerProfile(ctx context.Context, playerID string) (Profile, error) {
	if err := c.acquire(ctx); err != nil {
		return Profile{}, err
	}

	var body struct {
		Success bool `json:"success"`
		Player  *struct {
			DisplayName string `json:"displayname"`
			SocialMedia struct {
				Links struct {
					Discord string `json:"DISCORD"`
				} `json:"links"`
			} `json:"socialMedia"`
		} `json:"player"`
	}
	if err := c.get(ctx, "/player", url.Values{"uuid": {playerID}}, &body); err != nil {
		return Profile{}, err
	}
	if !body.Success || body.Player == nil {
		return Profile{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	p := Profile{
		PlayerName:    body.Player.DisplayName,
		PlayerID:      playerID,
		LinkedContact: body.Player.SocialMedia.Links.Discord,
	}
	if p.PlayerName == "" {
		p.PlayerName = playerID
	}
	return p, nil
}

// Remaining reports how many directory calls the budget still allows.
func (c *Client) Remaining() int {
	if c.Limiter == nil {
		return 0
	}
	return c.Limiter.Remaining()
}

func (c *Client) acquire(ctx context.Context) error {
	if c.Limiter != nil {
		if err := c.Limiter.Acquire(ctx); err != nil {
			return err
		}
	}
	telemetry.Inc(telemetry.DirectoryCalls)
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	query.Set("key", c.APIKey)
	req.URL.RawQuery = query.Encode()

	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory: %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
