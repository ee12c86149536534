package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"xchg/pkg/apierr"
)

type Encoding string

const (
	EncodingRaw    = Encoding("raw")
	EncodingBase64 = Encoding("base64")
	EncodingHex    = Encoding("hex")
)

type Hash string

const (
	HashSHA256 = Hash("sha256")
	HashSHA384 = Hash("sha384")
	HashSHA512 = Hash("sha512")
)

type TimestampUnit string

const (
	TimestampSeconds = TimestampUnit("s")
	TimestampMillis  = TimestampUnit("ms")
)

// Scheme describes one exchange's HMAC authentication.
type Scheme struct {
	Hash              Hash
	SecretEncoding    Encoding // how the configured secret is encoded
	SignatureEncoding Encoding // how the digest is sent (base64 or hex)
	Timestamp         TimestampUnit

	KeyHeader        string
	SignHeader       string
	TimestampHeader  string
	PassphraseHeader string // optional
}

type Option func(*Signer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// Signer holds decoded key material for the lifetime of an adapter.
// The key is never written after New returns (until Wipe), so Sign is safe
// for concurrent use.
type Signer struct {
	scheme     Scheme
	apiKey     string
	passphrase string
	key        []byte
	newHash    func() hash.Hash
	now        func() time.Time
}

func New(creds Credentials, scheme Scheme, opts ...Option) (*Signer, error) {
	if creds.Key == "" || creds.Secret == "" {
		return nil, apierr.New(apierr.KindInitialization, "", "signer", "api key or secret is empty")
	}
	if scheme.PassphraseHeader != "" && creds.Passphrase == "" {
		return nil, apierr.New(apierr.KindInitialization, "", "signer", "passphrase is required")
	}
	newHash, err := resolveHash(scheme.Hash)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInitialization, "", "signer", err)
	}
	if scheme.SignatureEncoding != EncodingBase64 && scheme.SignatureEncoding != EncodingHex {
		return nil, apierr.New(apierr.KindInitialization, "", "signer", "unsupported signature encoding: %q", scheme.SignatureEncoding)
	}
	key, err := decodeSecret(creds.Secret, scheme.SecretEncoding)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInitialization, "", "signer", err)
	}

	s := &Signer{
		scheme:     scheme,
		apiKey:     creds.Key,
		passphrase: creds.Passphrase,
		key:        key,
		newHash:    newHash,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func resolveHash(h Hash) (func() hash.Hash, error) {
	switch h {
	case HashSHA256:
		return sha256.New, nil
	case HashSHA384:
		return sha512.New384, nil
	case HashSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", h)
	}
}

func decodeSecret(secret string, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingRaw, "":
		return []byte(secret), nil
	case EncodingBase64:
		key, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("fail to decode base64 secret: %w", err)
		}
		return key, nil
	case EncodingHex:
		key, err := hex.DecodeString(strings.TrimPrefix(secret, "0x"))
		if err != nil {
			return nil, fmt.Errorf("fail to decode hex secret: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported secret encoding: %q", enc)
	}
}

// Sign returns the encoded HMAC of timestamp + METHOD + path + body.
// path must already carry the query string for GET requests.
func (s *Signer) Sign(timestamp string, method string, path string, body string) string {
	mac := hmac.New(s.newHash, s.key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte(path))
	mac.Write([]byte(body))
	digest := mac.Sum(nil)

	if s.scheme.SignatureEncoding == EncodingHex {
		return hex.EncodeToString(digest)
	}
	return base64.StdEncoding.EncodeToString(digest)
}

func (s *Signer) Timestamp() string {
	now := s.now()
	if s.scheme.Timestamp == TimestampMillis {
		return strconv.FormatInt(now.UnixMilli(), 10)
	}
	return strconv.FormatInt(now.Unix(), 10)
}

// Headers builds the authentication headers for one request.
func (s *Signer) Headers(method string, path string, body string) map[string]string {
	timestamp := s.Timestamp()
	headers := map[string]string{
		s.scheme.KeyHeader:       s.apiKey,
		s.scheme.TimestampHeader: timestamp,
		s.scheme.SignHeader:      s.Sign(timestamp, method, path, body),
	}
	if s.scheme.PassphraseHeader != "" {
		headers[s.scheme.PassphraseHeader] = s.passphrase
	}
	return headers
}

// Wipe zeroes the key material. The signer must not be used afterwards.
func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for i := range s.key {
		s.key[i] = 0
	}
	s.passphrase = ""
}
