package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sells-group/opportunity-intake/internal/apperr"
)

// statusError classifies an HTTP status by family.
func statusError(code int) *apperr.Error {
	msg := fmt.Sprintf("http status %d", code)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.New(apperr.KindAccessDenied, msg)
	case code == http.StatusTooManyRequests:
		return apperr.New(apperr.KindRateLimited, msg)
	default:
		return apperr.New(apperr.KindNetwork, msg)
	}
}

// blockError classifies a detected block.
func blockError(bt BlockType) *apperr.Error {
	if bt == BlockJSShell {
		return apperr.New(apperr.KindParsing, "page requires javascript to render")
	}
	return apperr.New(apperr.KindAccessDenied, fmt.Sprintf("blocked by %s", bt))
}

// transportError classifies a failed request or navigation. Deadline
// expiry on ctx is a timeout regardless of how the driver reported it.
func transportError(ctx context.Context, err error, action string) *apperr.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(err, apperr.KindTimeout, action+" timed out")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return apperr.Wrap(err, apperr.KindTimeout, action+" timed out")
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(err, apperr.KindNetwork, action+" cancelled")
	}
	return apperr.Wrap(err, apperr.KindNetwork, action+" failed")
}
