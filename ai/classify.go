package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/poiesic/lexsync/retry"
)

// ClassifyError maps a provider call failure onto the retry taxonomy.
// Client libraries surface HTTP status only in the message, so throttling is
// recognised textually.
func ClassifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource exhausted"),
		strings.Contains(msg, "resourceexhausted"):
		return &retry.RateLimitError{Cause: err}
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "permission"):
		return err
	}
	return retry.Transient(err)
}
