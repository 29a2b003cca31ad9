package credentials

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names set on signed venue requests.
const (
	HeaderKey        = "X-ARB-KEY"
	HeaderTimestamp  = "X-ARB-TIMESTAMP"
	HeaderPassphrase = "X-ARB-PASSPHRASE"
	HeaderSignature  = "X-ARB-SIGNATURE"
)

// Signer produces HMAC-SHA256 request signatures for a venue gateway. The
// signature covers timestamp+method+path+body and is base64 encoded.
type Signer struct {
	Key        string
	Secret     string
	Passphrase string
}

// Headers returns the authentication headers for a request.
func (s *Signer) Headers(method, path, body string) map[string]string {
	return s.HeadersAt(method, path, body, time.Now().UnixMilli())
}

// HeadersAt is Headers with a caller supplied millisecond timestamp.
func (s *Signer) HeadersAt(method, path, body string, unixMilli int64) map[string]string {
	ts := strconv.FormatInt(unixMilli, 10)
	h := map[string]string{
		HeaderKey:       s.Key,
		HeaderTimestamp: ts,
		HeaderSignature: Sign([]byte(s.Secret), ts+method+path+body),
	}
	if s.Passphrase != "" {
		h[HeaderPassphrase] = s.Passphrase
	}
	return h
}

// Sign computes base64(HMAC-SHA256(key, message)).
func Sign(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (s *Signer) String() string {
	redact := func(v string) string {
		if len(v) <= 4 {
			return "****"
		}
		return v[:4] + "****"
	}
	return fmt.Sprintf("Signer{key=%s, secret=%s}", redact(s.Key), redact(s.Secret))
}
