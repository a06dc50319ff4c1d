package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/marcelsud/webhook-dispatcher/internal/clock"
)

const (
	// HeaderSignature carries "<algorithm>=<hex hmac>"
	HeaderSignature = "X-Signature"

	// HeaderTimestamp carries the unix seconds the signature was computed at
	HeaderTimestamp = "X-Timestamp"

	// DefaultAlgorithm is used when none is configured
	DefaultAlgorithm = "sha256"

	// SecretPrefix marks secrets produced by GenerateSecret
	SecretPrefix = "whsec_"

	// MinSecretBytes is the minimum recommended secret size (192 bits)
	MinSecretBytes = 24

	// MaxSecretBytes is the maximum recommended secret size (512 bits)
	MaxSecretBytes = 64
)

// algorithms is the fixed allow-list of HMAC hash functions
var algorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// Supported reports whether alg is in the allow-list
func Supported(alg string) bool {
	_, ok := algorithms[alg]
	return ok
}

/* Signer computes and verifies HMAC signatures over "<timestamp>.<body>"
 * Stateless apart from its configuration, safe for concurrent use
 */
type Signer struct {
	algorithm string
	newHash   func() hash.Hash
	clock     clock.Clock
}

// NewSigner creates a signer, an algorithm outside the allow-list is a configuration error
func NewSigner(algorithm string, c clock.Clock) (*Signer, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	algorithm = strings.ToLower(algorithm)

	newHash, ok := algorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported signature algorithm: %s", algorithm)
	}

	if c == nil {
		c = clock.New()
	}

	return &Signer{
		algorithm: algorithm,
		newHash:   newHash,
		clock:     c,
	}, nil
}

// Algorithm returns the configured algorithm name
func (s *Signer) Algorithm() string {
	return s.algorithm
}

// Sign returns the hex HMAC of "<unix timestamp>.<body>"
func (s *Signer) Sign(secret string, body []byte, timestamp time.Time) string {
	return hex.EncodeToString(s.mac(secret, body, timestamp))
}

func (s *Signer) mac(secret string, body []byte, timestamp time.Time) []byte {
	mac := hmac.New(s.newHash, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

/* Verify checks a hex signature in constant time
 * Returns false when the timestamp is further than tolerance from now
 */
func (s *Signer) Verify(secret string, body []byte, timestamp time.Time, signature string, tolerance time.Duration) bool {
	age := s.clock.Now().Sub(timestamp)
	if age < 0 {
		age = -age
	}
	if age > tolerance {
		return false
	}

	presented, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(presented, s.mac(secret, body, timestamp)) == 1
}

// Headers returns the signature and timestamp headers for a body
func (s *Signer) Headers(secret string, body []byte, timestamp time.Time) map[string]string {
	return map[string]string{
		HeaderSignature: Signature{Algorithm: s.algorithm, Hex: s.Sign(secret, body, timestamp)}.String(),
		HeaderTimestamp: strconv.FormatInt(timestamp.Unix(), 10),
	}
}

// VerifyHeaders verifies raw X-Signature and X-Timestamp header values
func VerifyHeaders(secret string, body []byte, signatureHeader, timestampHeader string, tolerance time.Duration, c clock.Clock) (bool, error) {
	sig, err := ParseHeader(signatureHeader)
	if err != nil {
		return false, err
	}

	ts, err := ParseTimestamp(timestampHeader)
	if err != nil {
		return false, err
	}

	signer, err := NewSigner(sig.Algorithm, c)
	if err != nil {
		return false, err
	}

	return signer.Verify(secret, body, ts, sig.Hex, tolerance), nil
}

// Signature is a parsed X-Signature header
type Signature struct {
	Algorithm string
	Hex       string
}

// String returns the header form: <algorithm>=<hex>
func (s Signature) String() string {
	return s.Algorithm + "=" + s.Hex
}

// ParseHeader parses an X-Signature value
func ParseHeader(header string) (Signature, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Signature{}, fmt.Errorf("signature header is empty")
	}

	alg, sig, ok := strings.Cut(header, "=")
	if !ok || alg == "" || sig == "" {
		return Signature{}, fmt.Errorf("invalid signature format, expected 'algorithm=hex'")
	}

	alg = strings.ToLower(alg)
	if !Supported(alg) {
		return Signature{}, fmt.Errorf("unsupported signature algorithm: %s", alg)
	}

	return Signature{Algorithm: alg, Hex: sig}, nil
}

// ParseTimestamp parses an X-Timestamp value
func ParseTimestamp(header string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp header: %w", err)
	}
	return time.Unix(secs, 0), nil
}

// GenerateSecret creates a random signing secret between MinSecretBytes and MaxSecretBytes
func GenerateSecret(size int) (string, error) {
	if size < MinSecretBytes || size > MaxSecretBytes {
		return "", fmt.Errorf("secret size must be between %d and %d bytes", MinSecretBytes, MaxSecretBytes)
	}

	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return SecretPrefix + base64.StdEncoding.EncodeToString(raw), nil
}
