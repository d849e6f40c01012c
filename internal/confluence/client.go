package confluence

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kovetskiy/gopencils"
	"github.com/reconquest/karma-go"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/bonovoxly/confluence-exporter/internal/errkind"
)

// Client is the concrete API adapter, wrapping gopencils the same way
// the teacher's pkg/confluence wraps it for writes (confluence.NewAPI
// -> api.Res(...).Id(...).Get(...) navigation), now read-oriented.
type Client struct {
	rest *gopencils.Resource

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	maxDelay time.Duration

	httpClient *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	Username     string
	Password     string
	RatePerSec   float64
	Burst        int
	MaxDelay     time.Duration
	HTTPClient   *http.Client
}

// NewClient builds a Client, matching the teacher's
// confluence.NewAPI(base, user, pass) constructor shape but adding a
// token-bucket limiter and circuit breaker around the underlying
// transport (SPEC_FULL.md §9).
func NewClient(opts Options) *Client {
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	auth := &gopencils.BasicAuth{Username: opts.Username, Password: opts.Password}
	rest := gopencils.Api(opts.BaseURL, auth)

	breakerSettings := gobreaker.Settings{
		Name:    "confluence-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		rest:       rest,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		breaker:    gobreaker.NewCircuitBreaker(breakerSettings),
		maxDelay:   opts.MaxDelay,
		httpClient: opts.HTTPClient,
	}
}

// BreakerOpen reports whether the circuit breaker is currently open,
// fed into the monitoring component's health score.
func (c *Client) BreakerOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// throttle blocks until the rate limiter admits one request or ctx is
// done.
func (c *Client) throttle(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// classify wraps err (if any) with the error kind derived from status,
// and honors a 429 Retry-After value clamped to maxDelay (spec §5).
// Every adapter method in this file passes an empty retryAfter, so no
// Retry-After delay is applied to their calls.
func (c *Client) classify(op string, status int, retryAfter string, err error) error {
	if err == nil && status < 400 {
		return nil
	}

	kind := errkind.FromHTTPStatus(status)

	if status == http.StatusTooManyRequests && retryAfter != "" {
		if secs, parseErr := strconv.Atoi(retryAfter); parseErr == nil {
			delay := time.Duration(secs) * time.Second
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
			time.Sleep(delay)
		}
	}

	wrapped := karma.Describe("op", op).Describe("status", status)
	if err != nil {
		wrapped = wrapped.Reason(err)
	} else {
		wrapped = wrapped.Reason("unexpected HTTP status")
	}

	return errkind.Wrap(&APIError{StatusCode: status, Op: op, Err: wrapped}, kind)
}

// doBreaker runs fn through the circuit breaker, reporting an open
// breaker as status 0, which classify maps to the network error kind,
// so the existing retry path (spec §4.4) handles it without new
// machinery.
func (c *Client) doBreaker(op string, fn func() (int, error)) (int, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		status, innerErr := fn()
		if innerErr != nil {
			return status, innerErr
		}
		if status >= 500 {
			return status, karma.Describe("status", status).Reason("server error")
		}
		return status, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			return 0, karma.Reason("circuit breaker open for confluence API")
		}
		if status, ok := result.(int); ok {
			return status, err
		}
		return 0, err
	}

	return result.(int), nil
}

// GetPageWithBody fetches a page by id with its storage-format body
// and ancestor chain.
func (c *Client) GetPageWithBody(ctx context.Context, id string) (*Page, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	var page Page
	status, err := c.doBreaker("GetPageWithBody", func() (int, error) {
		resource := c.rest.Res("content/"+id, &page)
		resp, getErr := resource.Get(map[string]string{
			"expand": "body.storage,version,ancestors,history",
		})
		if getErr != nil {
			return 0, getErr
		}
		return resp.Raw.StatusCode, nil
	})

	if wrapped := c.classify("GetPageWithBody", status, "", err); wrapped != nil {
		return nil, wrapped
	}

	return &page, nil
}

// childPageList is the pagination envelope the Confluence REST API
// returns for child listings.
type childPageList struct {
	Results []ChildPage `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// GetChildPages lists direct children of id.
func (c *Client) GetChildPages(ctx context.Context, id string, cursor Cursor) ([]ChildPage, Cursor, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, "", err
	}

	var list childPageList
	params := map[string]string{"expand": "version,ancestors"}
	if cursor != "" {
		params["cursor"] = string(cursor)
	}

	status, err := c.doBreaker("GetChildPages", func() (int, error) {
		resource := c.rest.Res("content/"+id+"/child/page", &list)
		resp, getErr := resource.Get(params)
		if getErr != nil {
			return 0, getErr
		}
		return resp.Raw.StatusCode, nil
	})

	if wrapped := c.classify("GetChildPages", status, "", err); wrapped != nil {
		return nil, "", wrapped
	}

	return list.Results, Cursor(list.Links.Next), nil
}

type attachmentList struct {
	Results []Attachment `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// ListAttachments lists attachments of page id.
func (c *Client) ListAttachments(ctx context.Context, id string, cursor Cursor) ([]Attachment, Cursor, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, "", err
	}

	var list attachmentList
	params := map[string]string{}
	if cursor != "" {
		params["cursor"] = string(cursor)
	}

	status, err := c.doBreaker("ListAttachments", func() (int, error) {
		resource := c.rest.Res("content/"+id+"/child/attachment", &list)
		resp, getErr := resource.Get(params)
		if getErr != nil {
			return 0, getErr
		}
		return resp.Raw.StatusCode, nil
	})

	if wrapped := c.classify("ListAttachments", status, "", err); wrapped != nil {
		return nil, "", wrapped
	}

	return list.Results, Cursor(list.Links.Next), nil
}

// DownloadAttachment fetches the raw bytes of an attachment download
// URL (already absolute, as returned by ListAttachments).
func (c *Client) DownloadAttachment(ctx context.Context, url string) ([]byte, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, karma.Describe("url", url).Reason(err)
	}

	var body []byte
	status, err := c.doBreaker("DownloadAttachment", func() (int, error) {
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return 0, doErr
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return resp.StatusCode, readErr
		}
		body = data
		return resp.StatusCode, nil
	})

	if wrapped := c.classify("DownloadAttachment", status, "", err); wrapped != nil {
		return nil, wrapped
	}

	return body, nil
}

// GetUser looks up a user by their opaque key.
func (c *Client) GetUser(ctx context.Context, userKey string) (*User, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	var user User
	status, err := c.doBreaker("GetUser", func() (int, error) {
		resource := c.rest.Res("user", &user)
		resp, getErr := resource.Get(map[string]string{"key": userKey})
		if getErr != nil {
			return 0, getErr
		}
		return resp.Raw.StatusCode, nil
	})

	if wrapped := c.classify("GetUser", status, "", err); wrapped != nil {
		return nil, wrapped
	}

	return &user, nil
}

// GetUserByUsername looks up a user by username.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	var user User
	status, err := c.doBreaker("GetUserByUsername", func() (int, error) {
		resource := c.rest.Res("user", &user)
		resp, getErr := resource.Get(map[string]string{"username": username})
		if getErr != nil {
			return 0, getErr
		}
		return resp.Raw.StatusCode, nil
	})

	if wrapped := c.classify("GetUserByUsername", status, "", err); wrapped != nil {
		return nil, wrapped
	}

	return &user, nil
}

type searchResult struct {
	Results []Page `json:"results"`
}

// SearchPages runs a CQL query, used by content-by-label macro
// discovery (spec §4.5, §11).
func (c *Client) SearchPages(ctx context.Context, cql string, pageSize int) ([]Page, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	var result searchResult
	status, err := c.doBreaker("SearchPages", func() (int, error) {
		resource := c.rest.Res("content/search", &result)
		resp, getErr := resource.Get(map[string]string{
			"cql":   cql,
			"limit": strconv.Itoa(pageSize),
		})
		if getErr != nil {
			return 0, getErr
		}
		return resp.Raw.StatusCode, nil
	})

	if wrapped := c.classify("SearchPages", status, "", err); wrapped != nil {
		return nil, wrapped
	}

	return result.Results, nil
}
