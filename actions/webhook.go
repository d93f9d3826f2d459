package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/liamcoop/triggers/event"
	"github.com/liamcoop/triggers/render"
)

// WebhookRequest is a fully rendered outbound HTTP call.
type WebhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// HTTPCaller performs webhook calls. Non-2xx responses are errors.
type HTTPCaller interface {
	Call(ctx context.Context, req WebhookRequest) (int, error)
}

// NetHTTPCaller calls webhooks with net/http.
type NetHTTPCaller struct {
	Client *http.Client
}

// NewHTTPCaller creates a caller whose client gives up after timeout. Calls
// are attempted once; there are no retries.
func NewHTTPCaller(timeout time.Duration) *NetHTTPCaller {
	return &NetHTTPCaller{Client: &http.Client{
		Transport: otelhttp.NewTransport(cleanhttp.DefaultPooledTransport()),
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}}
}

func (c *NetHTTPCaller) Call(ctx context.Context, req WebhookRequest) (int, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return 0, fmt.Errorf("failed to build webhook request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("webhook call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// renderBody parses tmpl as JSON and renders every string value (and object
// key) in it. The structure itself is never templated, so rendered values
// cannot break out of it.
func renderBody(tmpl string, c *event.Context) ([]byte, error) {
	if strings.TrimSpace(tmpl) == "" {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal([]byte(tmpl), &doc); err != nil {
		return nil, fmt.Errorf("webhook body is not valid JSON: %w", err)
	}
	out, err := json.Marshal(renderValue(doc, c))
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook body: %w", err)
	}
	return out, nil
}

func renderValue(v any, c *event.Context) any {
	switch v := v.(type) {
	case string:
		return render.Render(v, c)
	case []any:
		for i := range v {
			v[i] = renderValue(v[i], c)
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[render.Render(k, c)] = renderValue(val, c)
		}
		return out
	default:
		return v
	}
}
