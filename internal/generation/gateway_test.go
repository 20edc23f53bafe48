package generation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProvider struct {
	name  string
	delay time.Duration
	text  string
	err   error
	calls atomic.Int32
	last  atomic.Value
}

func (f *fakeProvider) Name() string { return f.name }

// Complete ignores ctx on purpose to model a provider call that cannot be interrupted.
func (f *fakeProvider) Complete(_ context.Context, msgs Messages) (string, error) {
	f.calls.Add(1)
	f.last.Store(msgs)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.text, f.err
}

func newRequest() Request {
	return NewRequest("competition",
		"You are an analyst for {{.company}}.",
		"Product: {{.product}}",
		`{"competitors": []}`,
		map[string]string{"company": "Acme", "product": "Rockets"})
}

func TestGenerateStructured(t *testing.T) {
	p := &fakeProvider{name: "fake", text: `{"competitors": ["Globex"]}`}
	g := NewGateway(p, Options{Structured: true}, zaptest.NewLogger(t))

	res := g.Generate(context.Background(), newRequest(), time.Second)
	require.Equal(t, KindStructured, res.Kind)
	assert.Equal(t, []any{"Globex"}, res.Record["competitors"])

	msgs := p.last.Load().(Messages)
	assert.True(t, msgs.JSON)
	assert.Contains(t, msgs.System, "You are an analyst for Acme.")
	assert.Contains(t, msgs.System, `{"competitors": []}`)
	assert.Equal(t, "Product: Rockets", msgs.User)
}

func TestGenerateRawTextFallback(t *testing.T) {
	t.Run("structured mode with prose", func(t *testing.T) {
		p := &fakeProvider{name: "fake", text: "Sure! ```json\n{\"a\": 1}\n```"}
		res := NewGateway(p, Options{Structured: true}, zaptest.NewLogger(t)).Generate(context.Background(), newRequest(), time.Second)
		assert.Equal(t, KindRawText, res.Kind)
		assert.Contains(t, res.Text, `"a": 1`)
	})

	t.Run("structured mode with bare list", func(t *testing.T) {
		p := &fakeProvider{name: "fake", text: `[{"day": 1}]`}
		res := NewGateway(p, Options{Structured: true}, zaptest.NewLogger(t)).Generate(context.Background(), newRequest(), time.Second)
		assert.Equal(t, KindRawText, res.Kind)
	})

	t.Run("text mode", func(t *testing.T) {
		p := &fakeProvider{name: "fake", text: `{"a": 1}`}
		res := NewGateway(p, Options{}, zaptest.NewLogger(t)).Generate(context.Background(), newRequest(), time.Second)
		assert.Equal(t, KindRawText, res.Kind)
		assert.False(t, p.last.Load().(Messages).JSON)
	})
}

func TestGenerateFailures(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		p := &fakeProvider{name: "fake", err: errors.New("401 unauthorized")}
		res := NewGateway(p, Options{}, zaptest.NewLogger(t)).Generate(context.Background(), newRequest(), time.Second)
		require.Equal(t, KindFailed, res.Kind)
		assert.False(t, res.TimedOut())
		assert.Contains(t, res.Reason(), "401")
	})

	t.Run("empty response", func(t *testing.T) {
		p := &fakeProvider{name: "fake", text: "  \n"}
		res := NewGateway(p, Options{}, zaptest.NewLogger(t)).Generate(context.Background(), newRequest(), time.Second)
		require.Equal(t, KindFailed, res.Kind)
		assert.ErrorIs(t, res.Err, ErrEmptyResponse)
	})

	t.Run("bad template", func(t *testing.T) {
		p := &fakeProvider{name: "fake", text: "{}"}
		req := NewRequest("broken", "{{.company", "", "", nil)
		res := NewGateway(p, Options{}, zaptest.NewLogger(t)).Generate(context.Background(), req, time.Second)
		require.Equal(t, KindFailed, res.Kind)
		assert.Equal(t, int32(0), p.calls.Load())
	})
}

func TestGenerateTimeoutAbandonsCall(t *testing.T) {
	p := &fakeProvider{name: "slow", delay: 10 * time.Second, text: "{}"}
	g := NewGateway(p, Options{Structured: true}, zaptest.NewLogger(t))

	start := time.Now()
	res := g.Generate(context.Background(), newRequest(), time.Second)
	elapsed := time.Since(start)

	require.Equal(t, KindFailed, res.Kind)
	assert.True(t, res.TimedOut())
	assert.Equal(t, "timeout", res.Reason())
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestGenerateCallerCancel(t *testing.T) {
	p := &fakeProvider{name: "slow", delay: 5 * time.Second, text: "{}"}
	g := NewGateway(p, Options{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	res := g.Generate(ctx, newRequest(), 10*time.Second)
	require.Equal(t, KindFailed, res.Kind)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerateRespectsProviderDeadline(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, _ Messages) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	res := NewGateway(p, Options{}, zaptest.NewLogger(t)).Generate(context.Background(), newRequest(), 100*time.Millisecond)
	assert.True(t, res.TimedOut())
}

func TestGenerateRateLimited(t *testing.T) {
	p := &fakeProvider{name: "fake", text: "ok"}
	g := NewGateway(p, Options{RequestsPerSecond: 10, Burst: 1}, zaptest.NewLogger(t))

	start := time.Now()
	for i := 0; i < 3; i++ {
		res := g.Generate(context.Background(), newRequest(), time.Second)
		require.Equal(t, KindRawText, res.Kind)
	}
	// burst 1 at 10 rps: the 2nd and 3rd calls each wait ~100ms
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRequestIsImmutable(t *testing.T) {
	vars := map[string]string{"company": "Acme"}
	req := NewRequest("x", "{{.company}}", "{{.missing}}", "", vars)
	vars["company"] = "Changed"

	msgs, err := req.Render()
	require.NoError(t, err)
	assert.Equal(t, "Acme", msgs.System)
	assert.Equal(t, "", msgs.User)

	got := req.Variables()
	got["company"] = "Mutated"
	assert.Equal(t, "Acme", req.Variable("company"))
}
