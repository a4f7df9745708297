// Package http adapts HTTP exchanges to the failure taxonomy so HTTP-backed
// upstreams can be orchestrated like any other operation.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aponysus/bulwark/classify"
	"github.com/aponysus/bulwark/retry"
)

// Do executes req with retries under the profile for name. The response
// status is ingested into the failure taxonomy, so 429s back off on the
// upstream's Retry-After hint and 5xx responses trip the breaker.
//
// Requests with a body must be replayable (GetBody set, which net/http does
// for the common body types).
func Do(ctx context.Context, exec *retry.Executor, name, service string, client *http.Client, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, errors.New("bulwark: request body is not replayable (GetBody is nil)")
	}

	op := func(ctx context.Context) (*http.Response, error) {
		outReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			outReq.Body = body
		}

		resp, err := client.Do(outReq)
		if err != nil {
			return nil, classify.FromStatus(&classify.StatusError{
				Service: service,
				Method:  req.Method,
				Err:     err,
			})
		}

		// FromResponse drains and closes non-2xx bodies so the connection
		// can be reused by the next attempt.
		if ingested := classify.FromResponse(service, resp); ingested != nil {
			return nil, ingested
		}
		return resp, nil
	}

	return retry.DoValue(ctx, exec, name, op)
}
