// Package ztcentral is a minimal client for the ZeroTier Central API,
// covering the calls the tracker maintenance job needs: listing network
// members and deauthorizing banned ones.
package ztcentral

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/louisbranch/gamewatch/internal/platform/timeouts"
)

const defaultBaseURL = "https://api.zerotier.com/api/v1"

// Member is one network member as reported by ZeroTier Central.
type Member struct {
	ID              string
	PhysicalAddress string
	LastSeen        time.Time
	Authorized      bool
}

// Client talks to the ZeroTier Central REST API.
type Client struct {
	BaseURL string
	token   string
	httpc   *http.Client
}

// NewClient returns a client authenticating with the given API token.
func NewClient(token string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		token:   token,
		httpc:   &http.Client{Timeout: timeouts.HTTPRequest},
	}
}

type memberPayload struct {
	NodeID          string `json:"nodeId"`
	PhysicalAddress string `json:"physicalAddress"`
	LastSeen        int64  `json:"lastSeen"`
	Config          struct {
		Authorized bool `json:"authorized"`
	} `json:"config"`
}

// Members lists all members of the given network.
func (c *Client) Members(ctx context.Context, networkID string) ([]Member, error) {
	var payload []memberPayload
	if err := c.do(ctx, http.MethodGet, "/network/"+networkID+"/member", nil, &payload); err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(payload))
	for _, p := range payload {
		members = append(members, Member{
			ID:              p.NodeID,
			PhysicalAddress: stripPort(p.PhysicalAddress),
			LastSeen:        time.UnixMilli(p.LastSeen),
			Authorized:      p.Config.Authorized,
		})
	}
	return members, nil
}

// SetAuthorized flips the authorization flag on one network member.
func (c *Client) SetAuthorized(ctx context.Context, networkID, memberID string, authorized bool) error {
	body := map[string]any{
		"config": map[string]any{"authorized": authorized},
	}
	return c.do(ctx, http.MethodPost, "/network/"+networkID+"/member/"+memberID, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call zerotier central: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zerotier central %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// MemberIDFromIPv6 extracts the 10-character node ID embedded in a ZeroTier
// RFC4193 IPv6 address. It returns "" when the address is not IPv6.
func MemberIDFromIPv6(address string) string {
	addr, err := netip.ParseAddr(address)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return ""
	}
	raw := addr.As16()
	return hex.EncodeToString(raw[11:])
}

func stripPort(address string) string {
	if i := strings.LastIndex(address, "/"); i >= 0 {
		return address[:i]
	}
	return address
}
