package daraja

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// Token returns the cached bearer credential, refreshing it when expired.
// The cached expiry is set conservatively below the gateway's stated lifetime.
// Two goroutines refreshing at once is tolerated; the loser's token simply
// replaces the winner's, at the cost of one extra network round trip.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cachedToken != "" && c.now().Before(c.tokenExpiry) {
		token := c.cachedToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, lifetime, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	expiry := c.now().Add(lifetime - c.tokenMargin)

	c.mu.Lock()
	c.cachedToken = token
	c.tokenExpiry = expiry
	c.mu.Unlock()

	return token, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build token request")
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, classifyTransportError(err, "token refresh failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeAuthentication, err, "read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, pkgerrors.New(pkgerrors.CodeAuthentication, "gateway rejected credentials").
			WithDetails(map[string]any{"http_status": resp.StatusCode})
	}

	var parsed tokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeAuthentication, err, "decode token response")
	}
	if parsed.AccessToken == "" {
		return "", 0, pkgerrors.New(pkgerrors.CodeAuthentication, "gateway returned empty access token")
	}

	// Daraja reports the lifetime as a string of seconds ("3599").
	seconds, err := strconv.Atoi(parsed.ExpiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}

	return parsed.AccessToken, time.Duration(seconds) * time.Second, nil
}
