// Package lsky implements the authenticated HTTP client for a Lsky Pro
// image-hosting server: token acquisition, multipart upload, paginated
// listing, deletion, and binary fetch.
package lsky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/Missiu/lsky-uploader/internal/errors"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps API response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 1024 * 1024

	// maxImageBytes caps binary image downloads.
	maxImageBytes = 64 * 1024 * 1024

	// defaultPageDelay is the pacing delay between paginated listing
	// requests, bounding the request rate against the server.
	defaultPageDelay = 200 * time.Millisecond
)

// Client talks to the Lsky Pro API. It holds a mutable reference to the
// AuthConfig and updates its Token on successful authentication. Safe
// for concurrent use; token acquisition is single-flight.
type Client struct {
	httpClient *http.Client
	cfg        *AuthConfig
	pageDelay  time.Duration

	// sf ensures at most one authentication request is in flight at a
	// time; concurrent callers share its outcome.
	sf singleflight.Group

	// onToken is invoked after every successful authentication so the
	// caller can persist the refreshed token.
	onToken func(token string)
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the bearer token
// from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client over the given auth config. If
// httpClient is nil, a client with a 30-second timeout and same-host
// redirect policy is created.
func NewClient(cfg *AuthConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		pageDelay:  defaultPageDelay,
	}
}

// OnTokenRefresh registers a callback invoked with every newly acquired
// token. Callers use it to persist the token between sessions.
func (c *Client) OnTokenRefresh(fn func(token string)) {
	c.onToken = fn
}

// Origin returns the scheme://host portion of the configured server URL,
// used to distinguish this service's images from arbitrary external URLs.
func (c *Client) Origin() string {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	return u.Scheme + "://" + u.Host
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// AcquireToken authenticates with the stored credentials and returns a
// bearer token, storing it on the AuthConfig as a side effect. The
// underlying request is single-flight: concurrent callers wait for the
// in-flight authentication and share its result instead of issuing
// duplicates.
func (c *Client) AcquireToken(ctx context.Context) (string, error) {
	token, err, _ := c.sf.Do("token", func() (interface{}, error) {
		return c.acquireToken(ctx)
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}

func (c *Client) acquireToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+"/tokens", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", apperrors.ErrInvalidCredentials
	}

	env, err := decodeEnvelope(body, resp.StatusCode, "/tokens")
	if err != nil {
		return "", err
	}

	var data tokenData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		return "", fmt.Errorf("token missing from response: %w", apperrors.ErrProtocol)
	}

	c.cfg.Token = data.Token
	if c.onToken != nil {
		c.onToken(data.Token)
	}

	return data.Token, nil
}

// decodeEnvelope validates and decodes the Lsky JSON envelope. The
// status field is probed before strict decoding so a parseable but
// wrongly shaped body surfaces as a protocol failure rather than a
// decoding error.
func decodeEnvelope(body []byte, statusCode int, endpoint string) (*envelope, error) {
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "status").Exists() {
		if statusCode < 200 || statusCode > 299 {
			return nil, fmt.Errorf("API %s returned status %d: %s", endpoint, statusCode, sanitizeResponseBody(body))
		}

		return nil, fmt.Errorf("API %s: %s: %w", endpoint, sanitizeResponseBody(body), apperrors.ErrProtocol)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}

	if !env.Status {
		detail := env.Message
		if detail == "" {
			detail = fmt.Sprintf("status %d", statusCode)
		}

		return nil, fmt.Errorf("API %s failed: %s", endpoint, detail)
	}

	return &env, nil
}

// do sends an authenticated request built by makeReq. On an unauthorized
// response it refreshes the token once and re-issues the request with
// the retry disabled; a second unauthorized response surfaces as
// ErrUnauthorized. makeReq is a constructor rather than a request so the
// retry gets a fresh body.
func (c *Client) do(ctx context.Context, makeReq func() (*http.Request, error), allowRetry bool) (*http.Response, error) {
	if c.cfg.Token == "" {
		if _, err := c.AcquireToken(ctx); err != nil {
			return nil, err
		}
	}

	req, err := makeReq()
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()

		if !allowRetry {
			return nil, apperrors.ErrUnauthorized
		}

		if _, err := c.AcquireToken(ctx); err != nil {
			return nil, err
		}

		return c.do(ctx, makeReq, false)
	}

	return resp, nil
}

// UploadBinary uploads image bytes as a multipart form and returns the
// public URL of the stored image. A non-success status or a response
// without a usable URL is a failure carrying any server detail text.
func (c *Client) UploadBinary(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	makeReq := func() (*http.Request, error) {
		var buf bytes.Buffer

		w := multipart.NewWriter(&buf)

		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		header.Set("Content-Type", mimeType)

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("creating multipart field: %w", err)
		}

		if _, err := part.Write(data); err != nil {
			return nil, fmt.Errorf("writing multipart body: %w", err)
		}

		if err := w.WriteField("strategy_id", strconv.Itoa(c.cfg.StrategyID)); err != nil {
			return nil, fmt.Errorf("writing strategy_id field: %w", err)
		}

		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing multipart writer: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+"/upload", &buf)
		if err != nil {
			return nil, fmt.Errorf("creating upload request: %w", err)
		}

		req.Header.Set("Content-Type", w.FormDataContentType())

		return req, nil
	}

	resp, err := c.do(ctx, makeReq, true)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", filename, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading upload response: %w", err)
	}

	env, err := decodeEnvelope(body, resp.StatusCode, "/upload")
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", filename, err)
	}

	var up uploadData
	if err := json.Unmarshal(env.Data, &up); err != nil || up.Links.URL == "" {
		return "", fmt.Errorf("upload response for %s lacks a URL: %w", filename, apperrors.ErrProtocol)
	}

	return up.Links.URL, nil
}

// ListAllImages fetches the full remote inventory, paginating from page 1
// until the server-reported last page and concatenating results in page
// order. A short fixed pacing delay separates page requests.
func (c *Client) ListAllImages(ctx context.Context) ([]Image, error) {
	var all []Image

	for page := 1; ; page++ {
		if page > 1 && c.pageDelay > 0 {
			select {
			case <-time.After(c.pageDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		p, err := c.listPage(ctx, page)
		if err != nil {
			return nil, err
		}

		all = append(all, p.Data...)

		if p.CurrentPage >= p.LastPage {
			break
		}
	}

	return all, nil
}

func (c *Client) listPage(ctx context.Context, page int) (*imagePage, error) {
	makeReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/images?page=%d", c.cfg.ServerURL, page), nil)
		if err != nil {
			return nil, fmt.Errorf("creating list request: %w", err)
		}

		return req, nil
	}

	resp, err := c.do(ctx, makeReq, true)
	if err != nil {
		return nil, fmt.Errorf("listing images page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading list response: %w", err)
	}

	env, err := decodeEnvelope(body, resp.StatusCode, "/images")
	if err != nil {
		return nil, err
	}

	var p imagePage
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decoding image page %d: %w", page, apperrors.ErrProtocol)
	}

	if p.LastPage < 1 {
		p.LastPage = 1
	}

	if p.CurrentPage < 1 {
		p.CurrentPage = page
	}

	return &p, nil
}

// DeleteImage removes a single stored image by its key. A non-success
// status is a failure naming the HTTP status.
func (c *Client) DeleteImage(ctx context.Context, key string) error {
	makeReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			c.cfg.ServerURL+"/images/"+url.PathEscape(key), nil)
		if err != nil {
			return nil, fmt.Errorf("creating delete request: %w", err)
		}

		return req, nil
	}

	resp, err := c.do(ctx, makeReq, true)
	if err != nil {
		return fmt.Errorf("deleting image %s: %w", key, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deleting image %s: server returned status %d", key, resp.StatusCode)
	}

	// Delete responses may carry an empty body; only reject an explicit
	// status=false envelope.
	if gjson.ValidBytes(body) && gjson.GetBytes(body, "status").Exists() && !gjson.GetBytes(body, "status").Bool() {
		return fmt.Errorf("deleting image %s: %s", key, gjson.GetBytes(body, "message").String())
	}

	return nil
}

// FetchBinary downloads the content of an image URL. Only URLs under the
// configured service's origin are fetched; the request carries no bearer
// token because stored image links are public.
func (c *Client) FetchBinary(ctx context.Context, imageURL string) ([]byte, error) {
	origin := c.Origin()
	if origin == "" || !strings.HasPrefix(imageURL, origin) {
		return nil, fmt.Errorf("refusing to fetch %s: outside configured origin %s", imageURL, origin)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: server returned status %d", imageURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading image body: %w", err)
	}

	return data, nil
}
