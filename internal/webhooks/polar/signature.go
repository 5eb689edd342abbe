package polar

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
)

const signaturePrefix = "sha256="

// SignatureHeaders are checked in order; the first non-empty value wins.
var SignatureHeaders = []string{
	"x-polar-signature",
	"x-signature",
	"signature",
	"webhook-signature",
}

// SignatureFromHeaders returns the first non-empty signature header.
func SignatureFromHeaders(h http.Header) string {
	for _, name := range SignatureHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// VerifySignature checks an HMAC-SHA256 of the raw body against the header.
// An empty secret disables verification and always returns true. The header
// may carry a "sha256=" prefix and either a hex or base64 digest; a
// space-separated list of "v1,<digest>" entries is also accepted.
func VerifySignature(ctx context.Context, logg *logger.Logger, body []byte, header, secret string) bool {
	if secret == "" {
		if logg != nil {
			logg.Warn(ctx, "webhook signature verification disabled: no webhook secret configured")
		}
		return true
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Fields(header) {
		digest, ok := decodeDigest(candidate)
		if ok && hmac.Equal(digest, expected) {
			return true
		}
	}
	return false
}

func decodeDigest(candidate string) ([]byte, bool) {
	candidate = strings.TrimPrefix(candidate, signaturePrefix)
	if version, rest, found := strings.Cut(candidate, ","); found && strings.HasPrefix(version, "v") {
		candidate = rest
	}
	if candidate == "" {
		return nil, false
	}
	if raw, err := hex.DecodeString(candidate); err == nil {
		return raw, true
	}
	if raw, err := base64.StdEncoding.DecodeString(candidate); err == nil {
		return raw, true
	}
	return nil, false
}
