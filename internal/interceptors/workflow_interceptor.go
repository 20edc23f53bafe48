// Package interceptors tags outgoing calls made from activities with the
// workflow they run for, so the embeddings service and the LLM proxy can
// correlate requests with a campaign.
package interceptors

import (
	"context"
	"net/http"

	"go.temporal.io/sdk/activity"
)

const (
	HeaderWorkflowID = "X-Workflow-ID"
	HeaderRunID      = "X-Run-ID"
	HeaderActivity   = "X-Activity-Type"
)

// WorkflowHTTPRoundTripper adds workflow metadata to outgoing HTTP requests
type WorkflowHTTPRoundTripper struct {
	base http.RoundTripper
}

// NewWorkflowHTTPRoundTripper creates a new HTTP interceptor that adds workflow metadata
func NewWorkflowHTTPRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &WorkflowHTTPRoundTripper{base: base}
}

// RoundTrip implements http.RoundTripper. Requests made outside an activity
// pass through unchanged.
func (w *WorkflowHTTPRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	headers := workflowHeaders(req.Context())
	if len(headers) == 0 {
		return w.base.RoundTrip(req)
	}
	// RoundTrippers must not mutate the caller's request.
	clone := req.Clone(req.Context())
	for k, v := range headers {
		clone.Header.Set(k, v)
	}
	return w.base.RoundTrip(clone)
}

func workflowHeaders(ctx context.Context) map[string]string {
	if !activity.IsActivity(ctx) {
		return nil
	}
	info := activity.GetInfo(ctx)
	if info.WorkflowExecution.ID == "" {
		return nil
	}
	return map[string]string{
		HeaderWorkflowID: info.WorkflowExecution.ID,
		HeaderRunID:      info.WorkflowExecution.RunID,
		HeaderActivity:   info.ActivityType.Name,
	}
}
