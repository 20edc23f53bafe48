package interceptors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func headerEcho(t *testing.T) (*httptest.Server, chan http.Header) {
	t.Helper()
	got := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestRoundTripperOutsideActivity(t *testing.T) {
	srv, got := headerEcho(t)
	client := &http.Client{Transport: NewWorkflowHTTPRoundTripper(nil)}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	h := <-got
	assert.Empty(t, h.Get(HeaderWorkflowID))
	assert.Empty(t, req.Header.Get(HeaderWorkflowID))
}

func TestRoundTripperInsideActivity(t *testing.T) {
	srv, got := headerEcho(t)
	client := &http.Client{Transport: NewWorkflowHTTPRoundTripper(nil)}

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	callEmbeddings := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
	env.RegisterActivity(callEmbeddings)

	_, err := env.ExecuteActivity(callEmbeddings)
	require.NoError(t, err)

	h := <-got
	assert.NotEmpty(t, h.Get(HeaderWorkflowID))
	assert.NotEmpty(t, h.Get(HeaderActivity))
}
