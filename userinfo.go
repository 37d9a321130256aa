package oauthclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// UserInfo is the normalized set of claims returned from the provider's
// userinfo endpoint.
//
// https://openid.net/specs/openid-connect-core-1_0.html#UserInfoResponse
type UserInfo map[string]interface{}

// Subject returns the sub claim.
func (u UserInfo) Subject() string {
	s, _ := u["sub"].(string)
	return s
}

// Email returns the email claim.
func (u UserInfo) Email() string {
	s, _ := u["email"].(string)
	return s
}

// Name returns the name claim.
func (u UserInfo) Name() string {
	s, _ := u["name"].(string)
	return s
}

// Unmarshal unpacks the claims into the passed type.
func (u UserInfo) Unmarshal(into interface{}) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, into)
}

// FetchUserInfo fetches the user's claims from the userinfo endpoint in the
// server metadata, authenticating with the same token resolution as Request.
// If the provider needs a compliance fix, the configured hook is applied to
// the raw response first.
func (c *Client) FetchUserInfo(ctx context.Context, opts ...RequestOption) (UserInfo, error) {
	md, err := c.resolver.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if md.UserinfoEndpoint == "" {
		return nil, ErrMissingUserinfoEndpoint
	}

	res, err := c.Get(ctx, md.UserinfoEndpoint, opts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return nil, &HTTPError{Response: res, Body: body}
	}

	var data map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, err
	}

	if c.cfg.UserinfoComplianceFix != nil {
		data, err = c.cfg.UserinfoComplianceFix(ctx, data)
		if err != nil {
			return nil, err
		}
	}

	return UserInfo(data), nil
}
