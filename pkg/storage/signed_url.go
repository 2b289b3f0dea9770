package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("storage: invalid download token")
	ErrTokenExpired = errors.New("storage: download token expired")
)

// DownloadGrant is the content of a verified download token.
type DownloadGrant struct {
	Scope     string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner issues HMAC-SHA256 tokens granting time-limited access to a stored file.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner builds a signer; ttl defaults to 24h.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for path within scope (for example "availability-export").
func (s *SignedURLSigner) Sign(scope, path string) (string, time.Time, error) {
	if scope == "" || path == "" {
		return "", time.Time{}, errors.New("storage: scope and path required")
	}
	if strings.Contains(scope, ".") {
		return "", time.Time{}, fmt.Errorf("storage: scope %q must not contain '.'", scope)
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("storage: signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(path))
	sig := s.mac(scope, exp, encoded)
	return strings.Join([]string{scope, exp, encoded, sig}, "."), expiresAt, nil
}

// Verify checks the signature and expiry of token.
func (s *SignedURLSigner) Verify(token string) (*DownloadGrant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, ErrInvalidToken
	}
	scope, exp, encoded, sig := parts[0], parts[1], parts[2], parts[3]
	if !hmac.Equal([]byte(s.mac(scope, exp, encoded)), []byte(sig)) {
		return nil, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	path, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidToken
	}
	expiresAt := time.Unix(unix, 0)
	if !s.now().Before(expiresAt) {
		return nil, ErrTokenExpired
	}
	return &DownloadGrant{Scope: scope, Path: string(path), ExpiresAt: expiresAt}, nil
}

func (s *SignedURLSigner) mac(scope, exp, encoded string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(scope + "|" + exp + "|" + encoded))
	return hex.EncodeToString(h.Sum(nil))
}
