package httpjson

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serve(t *testing.T, h fasthttp.RequestHandler) *fasthttputil.InmemoryListener {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, h) }()
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func dialer(ln *fasthttputil.InmemoryListener) fasthttp.DialFunc {
	return func(string) (net.Conn, error) { return ln.Dial() }
}

func TestPostJSONRoundTrip(t *testing.T) {
	ln := serve(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/echo" || string(ctx.Request.Header.Peek("X-Token")) != "t1" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(ctx.PostBody())
	})

	c := NewClient("http://upstream/", WithDial(dialer(ln)),
		WithHeaderProvider(func() map[string]string { return map[string]string{"X-Token": "t1", "X-Empty": ""} }))

	var out struct {
		Text string `json:"text"`
	}
	if err := c.PostJSON(context.Background(), "/echo", map[string]string{"text": "hi"}, &out, false); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out.Text != "hi" {
		t.Fatalf("unexpected body: %+v", out)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	ln := serve(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString(`{}`)
	})

	c := NewClient("http://upstream", WithDial(dialer(ln)), WithRetry(3))
	if err := c.PostJSON(context.Background(), "/x", nil, nil, true); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	ln := serve(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString("nope")
	})

	c := NewClient("http://upstream", WithDial(dialer(ln)))
	err := c.PostJSON(context.Background(), "/x", nil, nil, true)

	var se *StatusError
	if !errors.As(err, &se) || se.Code != fasthttp.StatusForbidden || se.Body != "nope" {
		t.Fatalf("expected StatusError 403, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestBackoffDuration(t *testing.T) {
	if backoffDuration(0) != backoffDuration(1) {
		t.Fatalf("attempt below 1 should clamp")
	}
	if backoffDuration(10) != backoffDuration(6) {
		t.Fatalf("attempt above 6 should clamp")
	}
}
