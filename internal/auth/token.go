package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
	ErrTokenSID    = errors.New("session id mismatch")
	ErrNoSecret    = errors.New("client token secret not configured")
)

// Signer mints and verifies the tokens a page presents when it opens its
// WebSocket. Format: base64url(session_id + "." + exp_unix + "." + hex(hmac_sha256(secret, session_id+"."+exp))).
type Signer struct {
	secret []byte
	ttl    time.Duration
	skew   time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl, skew time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl, skew: skew, now: time.Now}
}

// Mint returns a token for sessionID and its expiry.
func (s *Signer) Mint(sessionID string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	exp := s.now().Add(s.ttl).Truncate(time.Second)
	msg := sessionID + "." + strconv.FormatInt(exp.Unix(), 10)
	raw := msg + "." + hex.EncodeToString(s.sign(msg))
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), exp, nil
}

// Verify checks the token against expectSessionID. An empty expectation
// accepts any session and returns the embedded one.
func (s *Signer) Verify(token, expectSessionID string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrTokenFormat
	}
	// session ids are uuids and never contain '.'
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 {
		return "", ErrTokenFormat
	}
	sid, expStr, sigHex := parts[0], parts[1], parts[2]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", ErrTokenFormat
	}
	if expectSessionID != "" && sid != expectSessionID {
		return "", ErrTokenSID
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", ErrTokenFormat
	}
	if !hmac.Equal(s.sign(sid+"."+expStr), got) {
		return "", ErrTokenSig
	}
	if s.now().After(time.Unix(exp, 0).Add(s.skew)) {
		return "", ErrTokenExp
	}
	return sid, nil
}

func (s *Signer) sign(msg string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
