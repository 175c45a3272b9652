package llm

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrRateLimited means the provider asked us to back off.
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// isRateLimit recognises throttling in the shapes Google clients return it:
// REST errors, gRPC status, or just the code in the message.
func isRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if status.Code(err) == codes.ResourceExhausted {
		return true
	}
	return strings.Contains(err.Error(), "429")
}
