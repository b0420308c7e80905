package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/pysugar/cloud-nexus/internal/util"
)

// Sentinel errors for the classified failure kinds.
// Use errors.Is(err, provider.ErrAuthExpired) to check.
var (
	// ErrAuthExpired means the access token was rejected; a refresh may help.
	ErrAuthExpired = errors.New("access token expired or rejected")

	// ErrAuthRevoked means the refresh itself failed; the account must be reconnected.
	ErrAuthRevoked = errors.New("authorization revoked, reconnect account")

	// ErrNotFound means the account or file is unknown.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported means the operation is not implemented for the provider.
	ErrUnsupported = errors.New("operation not supported")

	// ErrTransientNetwork is an I/O failure without an auth signal.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrQuotaExceeded is a provider-reported capacity error.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrValidation covers empty files, blank names and similar input errors.
	ErrValidation = errors.New("validation failed")

	// ErrPermissionDenied means the requesting user does not own the resource.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict means a concurrent token refresh won the race; retry the call.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrProvider is any provider failure that matches no other kind.
	ErrProvider = errors.New("provider error")
)

// Error carries the classified kind of a failure together with the
// operation, provider and the raw cause.
type Error struct {
	Op         string
	Provider   Type
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(string(e.Provider))
		b.WriteByte(' ')
	}
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Cause != nil:
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

var sentinels = []error{
	ErrAuthExpired, ErrAuthRevoked, ErrNotFound, ErrUnsupported,
	ErrTransientNetwork, ErrQuotaExceeded, ErrValidation,
	ErrPermissionDenied, ErrConflict, ErrProvider,
}

// Kind returns the sentinel an error is classified as, or nil when the
// error carries no classification yet.
func Kind(err error) error {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s
		}
	}
	return nil
}

var authMarkers = []string{
	"invalid_grant",
	"token expired",
	"token has expired",
	"expired token",
	"expired_access_token",
	"invalid_access_token",
	"invalid access token",
	"unauthorized",
	"access token has been revoked",
	"does not support refreshing the access token",
}

var quotaMarkers = []string{
	"insufficient_space",
	"insufficientstorage",
	"quotaexceeded",
	"storagequotaexceeded",
}

// KindForStatus maps an HTTP status code to a sentinel.
// Returns nil for 2xx and unclassified codes.
func KindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrAuthExpired
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusInsufficientStorage:
		return ErrQuotaExceeded
	case code == http.StatusBadRequest:
		return ErrValidation
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return ErrTransientNetwork
	}
	return nil
}

// classifyCause inspects a raw failure. Message markers take precedence
// over network heuristics so an auth failure surfaced through an I/O
// error still triggers a refresh.
func classifyCause(err error) error {
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return ErrAuthExpired
		}
	}
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return ErrQuotaExceeded
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"):
		return ErrTransientNetwork
	}
	return ErrProvider
}

// Classify wraps err in an *Error carrying its kind. Errors that are
// already classified are returned unchanged.
func Classify(op string, p Type, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return &Error{Op: op, Provider: p, Err: classifyCause(err), Cause: err}
}

// StatusError builds a classified error from an HTTP response status and
// body excerpt.
func StatusError(op string, p Type, code int, body string) error {
	kind := KindForStatus(code)
	if kind == nil || kind == ErrValidation {
		// Bodies such as {"error":"invalid_grant"} or quota reasons refine
		// generic 400s.
		if refined := classifyCause(errors.New(body)); refined != ErrProvider {
			kind = refined
		} else if kind == nil {
			kind = ErrProvider
		}
	}
	return &Error{Op: op, Provider: p, StatusCode: code, Message: util.Truncate(strings.TrimSpace(body), 512), Err: kind}
}

// IsAuthExpired reports whether err should trigger a reactive refresh.
func IsAuthExpired(err error) bool { return errors.Is(err, ErrAuthExpired) }

// IsAuthRevoked reports whether the account has to be reconnected.
func IsAuthRevoked(err error) bool { return errors.Is(err, ErrAuthRevoked) }

// IsNotFound reports whether err denotes an unknown account or file.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnsupported reports whether the operation is unavailable for the provider.
func IsUnsupported(err error) bool { return errors.Is(err, ErrUnsupported) }
