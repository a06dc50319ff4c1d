package worker

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marcelsud/webhook-dispatcher/delivery"
	"github.com/marcelsud/webhook-dispatcher/payload"
	"github.com/marcelsud/webhook-dispatcher/signature"
	"github.com/marcelsud/webhook-dispatcher/subscription"
)

const (
	HeaderEventType       = "X-Event-Type"
	HeaderDeliveryID      = "X-Delivery-ID"
	HeaderDeliveryAttempt = "X-Delivery-Attempt"
)

// Custom subscription headers never replace these
var reservedHeaders = map[string]bool{
	"Content-Type":                                     true,
	"Content-Length":                                   true,
	"Host":                                             true,
	"User-Agent":                                       true,
	http.CanonicalHeaderKey(signature.HeaderSignature): true,
	http.CanonicalHeaderKey(signature.HeaderTimestamp): true,
	http.CanonicalHeaderKey(HeaderEventType):           true,
	http.CanonicalHeaderKey(HeaderDeliveryID):          true,
	http.CanonicalHeaderKey(HeaderDeliveryAttempt):     true,
}

// Request is a fully built, signed outbound webhook request
type Request struct {
	Method    string
	URL       string
	Header    http.Header
	Body      []byte
	Timeout   time.Duration
	VerifyTLS bool
}

// LogHeaders returns the request headers in the shape the log store keeps
func (r Request) LogHeaders() map[string]string {
	return flatten(r.Header)
}

/* NewRequest encodes the attempt's envelope snapshot in the subscription's format
 * and signs the exact bytes that will be sent
 */
func NewRequest(signer *signature.Signer, sub subscription.Subscription, a delivery.Attempt, userAgent string, now time.Time) (Request, error) {
	if err := validateEndpoint(sub.URL); err != nil {
		return Request{}, err
	}

	body, err := encodeBody(sub.Format, a.Payload)
	if err != nil {
		return Request{}, err
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	header := make(http.Header)
	header.Set("Content-Type", sub.Format.ContentType())
	header.Set("User-Agent", userAgent)
	for name, value := range signer.Headers(sub.Secret, body, now) {
		header.Set(name, value)
	}
	header.Set(HeaderEventType, a.EventType)
	header.Set(HeaderDeliveryID, a.ID)
	header.Set(HeaderDeliveryAttempt, strconv.Itoa(a.AttemptNumber))

	for _, h := range sub.CustomHeaders {
		if reservedHeaders[http.CanonicalHeaderKey(h.Name)] {
			continue
		}
		header.Set(h.Name, h.Value)
	}

	method := string(sub.Method)
	if method == "" {
		method = string(subscription.MethodPost)
	}

	return Request{
		Method:    method,
		URL:       sub.URL,
		Header:    header,
		Body:      body,
		Timeout:   sub.Timeout(0),
		VerifyTLS: sub.VerifyTLS,
	}, nil
}

func encodeBody(format payload.Format, snapshot []byte) ([]byte, error) {
	if format == payload.JSON || format == 0 {
		return snapshot, nil
	}

	v, err := payload.Parse(snapshot)
	if err != nil {
		return nil, fmt.Errorf("decoding payload snapshot: %w", err)
	}
	body, err := format.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload as %s: %w", format, err)
	}
	return body, nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("malformed endpoint: %q", raw)
	}
	return nil
}
