package worker

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	"github.com/marcelsud/webhook-dispatcher/internal/clock"
)

const (
	DefaultTimeout              = 10 * time.Second
	DefaultMaxResponseBodyBytes = 4096
	DefaultUserAgent            = "webhook-dispatcher/1.0"
)

// SenderConfig controls outbound HTTP behaviour
type SenderConfig struct {
	DefaultTimeout       time.Duration
	MaxResponseBodyBytes int
}

// Response is the classified result of one HTTP send
type Response struct {
	Outcome    delivery.Outcome
	StatusCode int
	Header     map[string]string
	Body       string // at most MaxResponseBodyBytes
	Duration   time.Duration
	RetryAfter time.Duration // only set for 408 and 429
	Err        string
}

// ResponseTimeMs returns the measured duration in milliseconds
func (r Response) ResponseTimeMs() int64 {
	return r.Duration.Milliseconds()
}

/* Sender performs signed webhook requests
 * Two clients share the same settings except certificate verification,
 * redirects are never followed
 */
type Sender struct {
	cfg      SenderConfig
	secure   *http.Client
	insecure *http.Client
	clock    clock.Clock
}

func NewSender(cfg SenderConfig, c clock.Clock) *Sender {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.MaxResponseBodyBytes <= 0 {
		cfg.MaxResponseBodyBytes = DefaultMaxResponseBodyBytes
	}
	if c == nil {
		c = clock.New()
	}

	return &Sender{
		cfg:      cfg,
		secure:   newClient(false),
		insecure: newClient(true),
		clock:    c,
	}
}

func newClient(skipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if skipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per subscription
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Send performs req with a hard timeout and classifies the result
func (s *Sender) Send(ctx context.Context, req Request) Response {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{Outcome: delivery.OutcomePermanent, Err: fmt.Sprintf("malformed endpoint: %v", err)}
	}
	httpReq.Header = req.Header.Clone()

	client := s.secure
	if !req.VerifyTLS {
		client = s.insecure
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{
			Outcome:  classifyError(err),
			Duration: time.Since(start),
			Err:      err.Error(),
		}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(s.cfg.MaxResponseBodyBytes)))
	duration := time.Since(start)

	result := Response{
		Outcome:    Classify(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Header:     flatten(resp.Header),
		Body:       excerpt(body, s.cfg.MaxResponseBodyBytes),
		Duration:   duration,
	}
	if readErr != nil && result.Outcome != delivery.OutcomeDelivered {
		result.Err = fmt.Sprintf("reading response body: %v", readErr)
	}
	if result.Outcome != delivery.OutcomeDelivered && result.Err == "" {
		result.Err = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
		result.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), s.clock.Now())
	}

	return result
}

/* Classify maps a status code to an outcome
 * 2xx delivered, 408/429/5xx retryable, everything else permanent
 */
func Classify(statusCode int) delivery.Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return delivery.OutcomeDelivered
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return delivery.OutcomeRetryable
	case statusCode >= 500 && statusCode < 600:
		return delivery.OutcomeRetryable
	default:
		return delivery.OutcomePermanent
	}
}

/* classifyError treats transport failures as retryable (refused, timeout, DNS, TLS)
 * A response that could not be parsed or an unusable endpoint is permanent
 */
func classifyError(err error) delivery.Outcome {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "malformed HTTP"), strings.Contains(msg, "unsupported protocol scheme"):
		return delivery.OutcomePermanent
	default:
		return delivery.OutcomeRetryable
	}
}

// ParseRetryAfter accepts delay-seconds or an HTTP date, zero when absent or in the past
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}

// excerpt cuts a body read up to limit bytes back to the last whole rune
func excerpt(body []byte, limit int) string {
	if len(body) >= limit {
		for i := len(body) - 1; i >= 0 && i >= len(body)-utf8.UTFMax; i-- {
			if utf8.RuneStart(body[i]) {
				if !utf8.FullRune(body[i:]) {
					body = body[:i]
				}
				break
			}
		}
	}
	return deliverylog.Text(string(body))
}

// flatten joins repeated header values, the log store keeps one value per name
func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = deliverylog.Text(strings.Join(values, ", "))
	}
	return out
}
