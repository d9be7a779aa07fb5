package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoProvider is returned when neither the configured nor the default provider is usable.
	ErrNoProvider = errors.New("no usable provider")
	// ErrUnknownProvider is returned when no factory is registered under a name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingCredentials is returned by factories when required credentials are absent.
	ErrMissingCredentials = errors.New("missing provider credentials")
)

const maxErrorBody = 64 * 1024

// TransportError reports a failed call to a provider: a network error or a
// non-success HTTP status.
type TransportError struct {
	Provider string
	Status   int
	Err      error
	// Wire holds whatever was sent and received before the call failed.
	Wire Wire
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var queryKeyPattern = regexp.MustCompile(`(?i)([?&](?:key|api_key|apikey|access_token)=)[^&\s"']+`)

const redacted = "[REDACTED]"

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// Redact strips the given secrets and any key-like query parameters from the
// error text. The original error stays reachable through errors.Is and errors.As.
func Redact(err error, secrets ...string) error {
	if err == nil {
		return nil
	}
	msg := RedactString(err.Error(), secrets...)
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

// RedactString applies the Redact rules to a plain string.
func RedactString(s string, secrets ...string) string {
	for _, secret := range secrets {
		if strings.TrimSpace(secret) == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return queryKeyPattern.ReplaceAllString(s, "${1}"+redacted)
}

// ReadAPIError turns a non-success response into an error carrying the
// provider's error message when the body contains one.
func ReadAPIError(name string, resp *http.Response, secrets ...string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return &TransportError{
			Provider: name,
			Status:   resp.StatusCode,
			Err:      Redact(fmt.Errorf("failed to read error body: %w", err), secrets...),
		}
	}

	var wire Wire
	if len(body) > 0 {
		wire.Record([]byte(RedactString(string(body), secrets...)))
	}

	var cause error
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		cause = errors.New(msg.String())
	} else if msg := gjson.GetBytes(body, "0.error.message"); msg.Exists() && msg.String() != "" {
		cause = errors.New(msg.String())
	} else if text := strings.TrimSpace(string(body)); text != "" {
		cause = errors.New(text)
	} else {
		cause = errors.New(http.StatusText(resp.StatusCode))
	}

	return &TransportError{
		Provider: name,
		Status:   resp.StatusCode,
		Err:      Redact(cause, secrets...),
		Wire:     wire,
	}
}

// WrapTransport wraps a network level failure with provider identity and
// strips secrets from its text.
func WrapTransport(name string, err error, secrets ...string) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Provider: name, Err: Redact(err, secrets...)}
}

// AttachRequest records the request payload of a failed call on its
// TransportError. Other errors are returned untouched.
func AttachRequest(err error, request []byte) error {
	var te *TransportError
	if errors.As(err, &te) && len(te.Wire.Request) == 0 {
		te.Wire.Request = request
	}
	return err
}

// WireOf returns the payloads recorded on a failed call.
func WireOf(err error) (Wire, bool) {
	var te *TransportError
	if !errors.As(err, &te) {
		return Wire{}, false
	}
	return te.Wire, true
}
