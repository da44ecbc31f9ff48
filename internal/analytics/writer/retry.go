package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	retryableHTTP = []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
	retryableGRPC = []codes.Code{
		codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable,
	}
)

// do runs op until it succeeds, fails permanently, or attempts run out. The
// wait doubles after each transient failure up to MaximumBackoff.
func (p RetryPolicy) do(ctx context.Context, op func(context.Context) error) error {
	wait := p.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !transient(err) {
			return fmt.Errorf("bigquery insert after %d attempt(s): %w", attempt, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, p.MaximumBackoff)
	}
}

// transient reports whether a failed insert may succeed when repeated. Row
// level failures count only when every reported row error is itself transient.
func transient(err error) bool {
	var rows cbigquery.PutMultiError
	if errors.As(err, &rows) {
		return len(rows) > 0 && !slices.ContainsFunc(rows, func(row cbigquery.RowInsertionError) bool {
			return !allTransient(row.Errors)
		})
	}
	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		return allTransient(rowErr.Errors)
	}
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return slices.Contains(retryableHTTP, apiErr.Code)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return slices.Contains(retryableGRPC, st.Code())
	}
	return false
}

func allTransient(errs cbigquery.MultiError) bool {
	return len(errs) > 0 && !slices.ContainsFunc(errs, func(err error) bool { return !transient(err) })
}
