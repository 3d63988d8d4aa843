package gform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yanqian/formfiller/internal/domain/form"
	apperrors "github.com/yanqian/formfiller/pkg/errors"
)

// DefaultUserAgent mimics a desktop browser; Google serves a stripped page to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0 Safari/537.36"

const (
	snippetLimit = 500

	// DefaultMaxPageBytes caps how much of a viewform page is read.
	DefaultMaxPageBytes = 8 << 20
)

// Config tunes the HTTP side of form access.
type Config struct {
	UserAgent     string
	FetchTimeout  time.Duration
	SubmitTimeout time.Duration
	MaxPageBytes  int64
}

// Client fetches, parses and submits public Google Forms.
type Client struct {
	userAgent string
	maxPage   int64
	fetch     *http.Client
	submit    *http.Client
}

// NewClient constructs a form client.
func NewClient(cfg Config) *Client {
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 20 * time.Second
	}
	submitTimeout := cfg.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 20 * time.Second
	}
	maxPage := cfg.MaxPageBytes
	if maxPage <= 0 {
		maxPage = DefaultMaxPageBytes
	}
	return &Client{
		userAgent: ua,
		maxPage:   maxPage,
		fetch:     &http.Client{Timeout: fetchTimeout},
		submit:    &http.Client{Timeout: submitTimeout},
	}
}

// Fetch downloads the viewform page.
func (c *Client) Fetch(ctx context.Context, formURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formURL, nil)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "invalid form url", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.fetch.Do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeFormError, "fetch form", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxPage+1))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeFormError, "read form page", err)
	}
	if int64(len(body)) > c.maxPage {
		return "", apperrors.Wrap(apperrors.CodeFormError,
			fmt.Sprintf("form page exceeds %d bytes", c.maxPage), nil)
	}
	if resp.StatusCode >= 300 {
		return "", apperrors.Wrap(apperrors.CodeFormError,
			fmt.Sprintf("fetch form: status %d", resp.StatusCode), fmt.Errorf("body: %s", snippet(body)))
	}
	return string(body), nil
}

// Parse fetches formURL and parses it.
func (c *Client) Parse(ctx context.Context, formURL string) (form.Form, error) {
	page, err := c.Fetch(ctx, formURL)
	if err != nil {
		return form.Form{}, err
	}
	return ParseHTML(page, formURL)
}

// Submit posts fields to action in order, repeating keys as given. It returns
// the response status; any non-2xx status is an error carrying a body snippet.
func (c *Client) Submit(ctx context.Context, action string, fields []form.Field, referer string) (int, error) {
	if strings.TrimSpace(action) == "" {
		return 0, apperrors.Wrap(apperrors.CodeSubmitError, "form has no submit action", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(EncodeFields(fields)))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeSubmitError, "build submit request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.submit.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeSubmitError, "submit form", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		return resp.StatusCode, apperrors.Wrap(apperrors.CodeSubmitError,
			fmt.Sprintf("submit rejected: status %d", resp.StatusCode), fmt.Errorf("body: %s", string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// EncodeFields renders fields as an urlencoded body, keeping order and
// duplicate keys (url.Values would sort and group them).
func EncodeFields(fields []form.Field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, url.QueryEscape(f.Key)+"="+url.QueryEscape(f.Value))
	}
	return strings.Join(parts, "&")
}

func snippet(body []byte) string {
	if len(body) > snippetLimit {
		return string(body[:snippetLimit])
	}
	return string(body)
}
