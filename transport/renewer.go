package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/ledgerline/ledgerline-go/credentials"
	"github.com/ledgerline/ledgerline-go/refresh"
)

// RefreshTokenHeader carries the refresh token on the renewal call. The
// refresh token is never sent as a bearer credential.
const RefreshTokenHeader = "X-Refresh-Token"

const renewPath = "/auth/refresh-token"

// renewalBody tolerates both renewal response shapes: the full
// {success, data: {authenticationData: {...}}} envelope and the unwrapped
// equivalent.
type renewalBody struct {
	Success bool `json:"success"`
	Data    struct {
		AuthenticationData *credentials.Pair `json:"authenticationData"`
		AccessToken        string            `json:"accessToken"`
		RefreshToken       string            `json:"refreshToken"`
	} `json:"data"`
	AuthenticationData *credentials.Pair `json:"authenticationData"`
	AccessToken        string            `json:"accessToken"`
	RefreshToken       string            `json:"refreshToken"`
}

func (rb *renewalBody) pair() *credentials.Pair {
	switch {
	case rb.Data.AuthenticationData != nil:
		return rb.Data.AuthenticationData
	case rb.AuthenticationData != nil:
		return rb.AuthenticationData
	case rb.Data.AccessToken != "":
		return &credentials.Pair{AccessToken: rb.Data.AccessToken, RefreshToken: rb.Data.RefreshToken}
	case rb.AccessToken != "":
		return &credentials.Pair{AccessToken: rb.AccessToken, RefreshToken: rb.RefreshToken}
	}
	return nil
}

// NewRenewFunc builds the refresh.RenewFunc for a backend. The renewal call
// deliberately uses a bare HTTP client, not the intercepted one: renewing
// through the interceptors would recurse into renewal.
func NewRenewFunc(baseURL string, hc *http.Client) refresh.RenewFunc {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	return func(ctx context.Context, refreshToken string) (*credentials.Pair, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+renewPath, nil)
		if err != nil {
			return nil, errors.Wrap(err, "[RenewFunc] building renewal request")
		}
		req.Header.Set(RefreshTokenHeader, refreshToken)

		resp, err := hc.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "[RenewFunc] renewal request failed")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "[RenewFunc] reading renewal response")
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.Errorf("[RenewFunc] renewal returned status %d: %s", resp.StatusCode, messageFrom(body, resp.Status))
		}

		var parsed renewalBody
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, errors.Wrap(err, "[RenewFunc] decoding renewal response")
		}

		pair := parsed.pair()
		if pair == nil || pair.AccessToken == "" {
			return nil, errors.New("[RenewFunc] renewal response missing access token")
		}
		return pair, nil
	}
}
