package spark

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	signatureAlgorithm = "hmac-sha256"
	signedHeaders      = "host date request-line"
)

// Signer produces the authorization token of a connection request
type Signer interface {
	Sign(host, path, method, date string) (string, error)
}

// HMACSigner signs requests with a shared API key and secret
type HMACSigner struct {
	apiKey    string
	apiSecret string
}

var _ Signer = (*HMACSigner)(nil)

// NewHMACSigner creates a signer for the given key pair
func NewHMACSigner(apiKey, apiSecret string) *HMACSigner {
	return &HMACSigner{
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// Sign computes the base64 encoded authorization value for one request line
func (s *HMACSigner) Sign(host, path, method, date string) (string, error) {
	if s.apiKey == "" || s.apiSecret == "" {
		return "", fmt.Errorf("%w: API key and secret are required", ErrSigning)
	}
	if host == "" || path == "" || method == "" || date == "" {
		return "", fmt.Errorf("%w: host, path, method and date are required", ErrSigning)
	}

	origin := fmt.Sprintf("host: %s\ndate: %s\n%s %s HTTP/1.1", host, date, method, path)

	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(origin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authorization := fmt.Sprintf(`api_key="%s", algorithm="%s", headers="%s", signature="%s"`,
		s.apiKey, signatureAlgorithm, signedHeaders, signature)

	return base64.StdEncoding.EncodeToString([]byte(authorization)), nil
}

// SignedURL builds the connection URL carrying authorization, date and host
// query parameters. The date is formatted as an RFC 1123 GMT timestamp.
func SignedURL(signer Signer, creds Credentials, now time.Time) (string, error) {
	date := now.UTC().Format(http.TimeFormat)
	path := creds.Path()

	authorization, err := signer.Sign(creds.Host, path, http.MethodGet, date)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("authorization", authorization)
	query.Set("date", date)
	query.Set("host", creds.Host)

	u := url.URL{
		Scheme:   creds.Scheme,
		Host:     creds.Host,
		Path:     path,
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}
