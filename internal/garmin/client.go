// Package garmin talks to the Garmin Connect web API. Responses are handed
// back as raw JSON maps; field selection is the caller's job because the
// payload shape varies by device and account.
package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// ErrAuth is returned when the account cannot be signed in. It is the only
// failure that aborts a run.
var ErrAuth = errors.New("garmin login failed")

const (
	defaultSSO     = "https://sso.garmin.com/sso"
	defaultConnect = "https://connect.garmin.com"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) garmin-briefing"
)

var (
	csrfRe   = regexp.MustCompile(`name="_csrf"\s+value="([^"]+)"`)
	ticketRe = regexp.MustCompile(`ticket=([^"'&\s]+)`)
)

// APIError is a non-2xx answer from a data endpoint.
type APIError struct {
	Status int
	Path   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("garmin %s: HTTP %d", e.Path, e.Status)
}

type Client struct {
	http        *http.Client
	ssoURL      string
	connectURL  string
	displayName string
	log         *zap.Logger
}

type Option func(*Client)

// WithBaseURLs points the client at other SSO and Connect hosts.
func WithBaseURLs(sso, connect string) Option {
	return func(c *Client) {
		c.ssoURL = strings.TrimRight(sso, "/")
		c.connectURL = strings.TrimRight(connect, "/")
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	c := &Client{
		http:       &http.Client{Jar: jar, Timeout: 30 * time.Second},
		ssoURL:     defaultSSO,
		connectURL: defaultConnect,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// DisplayName is the profile handle used in per-user endpoints.
func (c *Client) DisplayName() string { return c.displayName }

// Login signs in through the SSO form, redeems the service ticket for a
// Connect session and loads the profile.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: missing credentials", ErrAuth)
	}
	service := c.connectURL + "/modern/"
	params := url.Values{
		"service":   {service},
		"webhost":   {c.connectURL},
		"gauthHost": {c.ssoURL},
		"source":    {c.connectURL + "/signin/"},
	}
	signin := c.ssoURL + "/signin?" + params.Encode()

	page, err := c.fetch(ctx, http.MethodGet, signin, nil)
	if err != nil {
		return fmt.Errorf("%w: load sign-in page: %v", ErrAuth, err)
	}
	form := url.Values{
		"username": {email},
		"password": {password},
		"embed":    {"false"},
	}
	if m := csrfRe.FindSubmatch(page); m != nil {
		form.Set("_csrf", string(m[1]))
	}

	body, err := c.fetch(ctx, http.MethodPost, signin, form)
	if err != nil {
		return fmt.Errorf("%w: submit credentials: %v", ErrAuth, err)
	}
	m := ticketRe.FindSubmatch(body)
	if m == nil {
		return fmt.Errorf("%w: no service ticket in response", ErrAuth)
	}
	if _, err := c.fetch(ctx, http.MethodGet, service+"?ticket="+url.QueryEscape(string(m[1])), nil); err != nil {
		return fmt.Errorf("%w: redeem ticket: %v", ErrAuth, err)
	}

	profile, err := c.object(ctx, "userprofile-service/socialProfile", nil)
	if err != nil {
		return fmt.Errorf("%w: load profile: %v", ErrAuth, err)
	}
	name, _ := profile["displayName"].(string)
	if name == "" {
		return fmt.Errorf("%w: profile has no display name", ErrAuth)
	}
	c.displayName = name
	c.log.Debug("garmin session ready", zap.String("display_name", name))
	return nil
}

// DailySummary is the user summary for one day: steps, calories, resting
// heart rate, body battery and, on most accounts, HRV averages.
func (c *Client) DailySummary(ctx context.Context, day string) (map[string]any, error) {
	return c.object(ctx, "usersummary-service/usersummary/daily/"+url.PathEscape(c.displayName),
		url.Values{"calendarDate": {day}})
}

func (c *Client) DailySteps(ctx context.Context, start, end string) ([]map[string]any, error) {
	return c.list(ctx, fmt.Sprintf("usersummary-service/stats/steps/daily/%s/%s", start, end), nil)
}

func (c *Client) Sleep(ctx context.Context, day string) (map[string]any, error) {
	return c.object(ctx, "wellness-service/wellness/dailySleepData/"+url.PathEscape(c.displayName),
		url.Values{"date": {day}, "nonSleepBufferMinutes": {"60"}})
}

func (c *Client) HRV(ctx context.Context, day string) (map[string]any, error) {
	return c.object(ctx, "hrv-service/hrv/"+day, nil)
}

func (c *Client) BodyComposition(ctx context.Context, start, end string) (map[string]any, error) {
	return c.object(ctx, "weight-service/weight/dateRange",
		url.Values{"startDate": {start}, "endDate": {end}})
}

// Activities lists sessions that started between start and end, inclusive.
func (c *Client) Activities(ctx context.Context, start, end string) ([]map[string]any, error) {
	return c.list(ctx, "activitylist-service/activities/search/activities", url.Values{
		"startDate": {start},
		"endDate":   {end},
		"start":     {"0"},
		"limit":     {"100"},
	})
}

func (c *Client) object(ctx context.Context, path string, q url.Values) (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) list(ctx context.Context, path string, q url.Values) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.connectURL + "/modern/proxy/" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("NK", "NT")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("garmin %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("garmin request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &APIError{Status: resp.StatusCode, Path: path}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("garmin %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, method, u string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Origin", c.ssoURL)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return data, nil
}
