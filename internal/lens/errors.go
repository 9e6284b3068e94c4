package lens

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
)

// maxErrorBody caps how much of an unexpected response body is kept for diagnosis
const maxErrorBody = 4 * 1024

// UploadError reports that the remote service did not answer a request the way the
// upload flow expects, typically a missing redirect or a non-2xx status.
type UploadError struct {
	Op         string // "upload", "results" or "uploadbyurl"
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("lens %s failed: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("lens %s failed: status %d, body: %s", e.Op, e.StatusCode, body)
}

func newUploadError(op string, status int, body []byte) *UploadError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &UploadError{Op: op, StatusCode: status, Body: string(body)}
}

// ExtractionError reports that the embedded data block could not be located or repaired
type ExtractionError struct {
	Reason string
	Cause  error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to extract payload: %s: %v", e.Reason, e.Cause)
	}
	return "failed to extract payload: " + e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// ParseError reports a required positional field that was missing or had the wrong shape
type ParseError struct {
	Field  string
	Path   []int
	Entry  int // index into the similar items, -1 outside of an entry
	Reason string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("failed to parse ")
	b.WriteString(e.Field)
	if e.Entry >= 0 {
		b.WriteString(" of similar item ")
		b.WriteString(strconv.Itoa(e.Entry))
	}
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(formatPath(e.Path))
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func formatPath(path []int) string {
	var b strings.Builder
	for _, i := range path {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(i))
		b.WriteByte(']')
	}
	return b.String()
}

// IsUploadError checks if an error is an upload error
func IsUploadError(err error) bool {
	var e *UploadError
	return errors.As(err, &e)
}

// IsExtractionError checks if an error is an extraction error
func IsExtractionError(err error) bool {
	var e *ExtractionError
	return errors.As(err, &e)
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// Retryable reports whether repeating the same search could plausibly succeed.
// Extraction and parse failures mean the page format changed and never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsExtractionError(err) || IsParseError(err) {
		return false
	}
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.StatusCode == http.StatusTooManyRequests || ue.StatusCode >= 500
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	// Local file errors will not change on retry
	var pe *fs.PathError
	if errors.As(err, &pe) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return false
	}
	// Anything else came from the transport
	return true
}

// ValidationError reports bad input that was rejected before any request was made
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
