package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Requests between the API and the processing pipeline are signed over
// method, path, body hash, date and nonce.
const (
	HeaderSignature = "X-Scanhub-Signature"
	HeaderDate      = "X-Scanhub-Date"
	HeaderNonce     = "X-Scanhub-Nonce"
)

func ComputeBodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func ComputeSignature(secret string, method string, path string, bodyHash string, date string, nonce string) string {
	data := strings.Join([]string{
		strings.ToUpper(method),
		path,
		bodyHash,
		date,
		nonce,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func ValidateSignature(secret string, signature string, method string, path string, body []byte, date string, nonce string) bool {
	expected := ComputeSignature(secret, method, path, ComputeBodyHash(body), date, nonce)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SignRequest sets the signature headers on an outgoing request.
func SignRequest(req *http.Request, secret string, body []byte, nonce string, now time.Time) {
	date := now.UTC().Format(http.TimeFormat)
	req.Header.Set(HeaderDate, date)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, ComputeSignature(secret, req.Method, req.URL.Path, ComputeBodyHash(body), date, nonce))
}

func ExtractSignatureHeaders(h http.Header) (date string, nonce string, signature string, err error) {
	date = h.Get(HeaderDate)
	nonce = h.Get(HeaderNonce)
	signature = h.Get(HeaderSignature)

	if date == "" || nonce == "" || signature == "" {
		return "", "", "", fmt.Errorf("missing signature headers")
	}
	return date, nonce, signature, nil
}

// CheckSkew parses an HTTP date header and rejects it when it is further
// than maxSkew from now.
func CheckSkew(date string, now time.Time, maxSkew time.Duration) error {
	ts, err := http.ParseTime(date)
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > maxSkew {
		return fmt.Errorf("date outside allowed skew")
	}
	return nil
}
