package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// RegisterNetTools adds the NET-class HTTP GET/POST tools to reg. allowed
// names the hosts the tools may reach; any other host is rejected before a
// request is issued.
func RegisterNetTools(reg *Registry, allowed []string) {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, h := range allowed {
		allowSet[h] = struct{}{}
	}

	reg.MustRegister(&Tool{
		Name:             "http.get",
		Description:      "Issue an HTTP GET to an allowlisted host.",
		Capability:       CapabilityNet,
		InitiatesNetwork: true,
		Idempotency:      Idempotent,
		Schema: Schema{
			Required:   []string{"url"},
			Properties: map[string]Property{"url": {Type: "string", Description: "target URL"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			target, _ := args["url"].(string)
			return executeHTTP(ctx, allowSet, http.MethodGet, target, "")
		},
	})

	reg.MustRegister(&Tool{
		Name:             "http.post",
		Description:      "Issue an HTTP POST with a body to an allowlisted host.",
		Capability:       CapabilityNet,
		InitiatesNetwork: true,
		Idempotency:      NonIdempotent,
		Schema: Schema{
			Required: []string{"url", "body"},
			Properties: map[string]Property{
				"url":  {Type: "string", Description: "target URL"},
				"body": {Type: "string", Description: "request body"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			target, _ := args["url"].(string)
			body, _ := args["body"].(string)
			return executeHTTP(ctx, allowSet, http.MethodPost, target, body)
		},
	})
}

func executeHTTP(ctx context.Context, allowSet map[string]struct{}, method, target, body string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("http.%s: invalid url: %w", strings.ToLower(method), err)
	}
	if _, ok := allowSet[u.Hostname()]; !ok {
		return "", fmt.Errorf("http.%s: host %q is not in the allowed host set", strings.ToLower(method), u.Hostname())
	}

	ctx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
	defer cancel()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return "", fmt.Errorf("http.%s: build request: %w", strings.ToLower(method), err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http.%s: %w", strings.ToLower(method), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxOutputLen))
	if err != nil {
		return "", fmt.Errorf("http.%s: read response: %w", strings.ToLower(method), err)
	}
	return fmt.Sprintf("%d %s\n%s", resp.StatusCode, resp.Status, string(data)), nil
}
