package oauthclient

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/url"
)

func randomString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// mergeValues overlays each set of values in order, later sets winning.
func mergeValues(sets ...url.Values) url.Values {
	out := url.Values{}
	for _, s := range sets {
		for k, vs := range s {
			if len(vs) > 0 {
				out.Set(k, vs[len(vs)-1])
			}
		}
	}
	return out
}

// urlWithParams appends params to the query string of rawurl.
func urlWithParams(rawurl string, params url.Values) string {
	if len(params) == 0 {
		return rawurl
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}
	q := u.Query()
	for k := range params {
		q.Set(k, params.Get(k))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
