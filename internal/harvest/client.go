package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"statharvest/internal/components/assert"
	"statharvest/internal/components/chrono"
	"statharvest/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const (
	report_client_request = "client.request"
	report_client_retry   = "client.retry"
	report_client_metrics = "client.metrics"
)

type ClientOptions struct {
	BaseUrl string
	// RequestDelay is the minimum pause between two requests, retries included.
	RequestDelay time.Duration
	// RateLimitBackoff is how long to wait after a 429 before trying again.
	RateLimitBackoff time.Duration
	// MaxRetries bounds how many times a rate limited request is resent.
	MaxRetries int
	Timeout    time.Duration
	UserAgent  string
	// Exchanges receives every raw request/response exchange when set.
	Exchanges telemetry.ExchangeOutput
}

// Client talks to the remote hierarchy API, one request at a time. It is not
// safe for concurrent use.
type Client struct {
	http       *resty.Client
	tel        telemetry.API
	time       chrono.API
	backoff    time.Duration
	maxRetries int

	requestCounter metric.Int64Counter
	retryCounter   metric.Int64Counter
}

func NewClient(opts ClientOptions, tel telemetry.API, clock chrono.API) *Client {
	assert.NotNil(tel)
	assert.NotNil(clock)
	assert.NotEmptyStr(opts.BaseUrl)
	assert.NonNegative("max retries", opts.MaxRetries)
	assert.NonNegative("request delay", opts.RequestDelay)

	tel = telemetry.NewScopedAPI("harvest", tel)

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "statharvest/1.0"
	}
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetHeader("accept", "application/json")

	// burst of 1 so that every request, retries included, waits out the delay
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	rateLimiter := rate.NewLimiter(limit, 1)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, tel, opts.Exchanges)

	meter := otel.Meter("statharvest/internal/harvest")
	requestCounter, err := meter.Int64Counter(
		"statharvest.client.requests",
		metric.WithDescription("Requests sent to the remote API."),
	)
	if err != nil {
		tel.ReportWarning(report_client_metrics, err)
	}
	retryCounter, err := meter.Int64Counter(
		"statharvest.client.retries",
		metric.WithDescription("Requests resent after a rate limit response."),
	)
	if err != nil {
		tel.ReportWarning(report_client_metrics, err)
	}

	return &Client{
		http:           httpClient,
		tel:            tel,
		time:           clock,
		backoff:        opts.RateLimitBackoff,
		maxRetries:     opts.MaxRetries,
		requestCounter: requestCounter,
		retryCounter:   retryCounter,
	}
}

type response struct {
	status  int
	body    []byte
	retries int
}

func requestUrl(path Path) string {
	if len(path) == 0 {
		return ""
	}
	return "/" + path.String()
}

// do sends a request and resends it while the remote answers 429, at most
// MaxRetries times. The context is checked before every attempt and every
// backoff sleep.
func (c *Client) do(ctx context.Context, method string, path Path, body []byte) (response, error) {
	url := requestUrl(path)

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := ctx.Err()
		if err != nil {
			return response{retries: attempt}, err
		}

		req := c.http.R().SetContext(ctx)
		if body != nil {
			req.SetHeader("content-type", "application/json").SetBody(body)
		}
		if c.requestCounter != nil {
			c.requestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
		}

		res, err := req.Execute(method, url)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return response{retries: attempt}, ctxErr
			}
			c.tel.ReportBroken(report_client_request, err, method, url)
			return response{retries: attempt}, &TransportError{Method: method, URL: url, Err: err}
		}

		status := res.StatusCode()
		if status == http.StatusTooManyRequests {
			lastErr = &HTTPError{Method: method, URL: url, StatusCode: status, Body: res.String()}
			if attempt >= c.maxRetries {
				c.tel.ReportBroken(report_client_retry, lastErr, attempt+1)
				return response{retries: attempt}, &RetriesExhaustedError{Attempts: attempt + 1, Last: lastErr}
			}

			c.tel.ReportWarning(
				report_client_retry,
				fmt.Sprintf("rate limited, waiting %s", c.backoff),
				method,
				url,
				attempt+1,
			)
			if c.retryCounter != nil {
				c.retryCounter.Add(ctx, 1)
			}
			err = c.time.Sleep(ctx, c.backoff)
			if err != nil {
				return response{retries: attempt + 1}, err
			}
			continue
		}

		if status < 200 || status >= 300 {
			return response{status: status, retries: attempt}, &HTTPError{
				Method:     method,
				URL:        url,
				StatusCode: status,
				Body:       res.String(),
			}
		}

		return response{status: status, body: res.Body(), retries: attempt}, nil
	}
}

func (c *Client) get(ctx context.Context, path Path) (response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path Path, payload any) (response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return response{}, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body)
}

// jsonKind names the top-level JSON value kind of body.
func jsonKind(body []byte) string {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return "object"
		case '[':
			return "array"
		case '"':
			return "string"
		case 'n':
			return "null"
		case 't', 'f':
			return "boolean"
		default:
			return "number"
		}
	}
	return "empty body"
}

// list fetches a hierarchy listing. `ok` is false when the path answered
// with something other than an array, which means it is not a hierarchy
// level.
func (c *Client) list(ctx context.Context, path Path) (items []listingItem, ok bool, err error) {
	res, err := c.get(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if jsonKind(res.body) != "array" {
		return nil, false, nil
	}
	err = json.Unmarshal(res.body, &items)
	if err != nil {
		return nil, false, &ShapeError{Path: path, Observed: "array", Detail: err.Error()}
	}
	return items, true, nil
}
