package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Djtony707/TITAN/internal/tools"
)

const restConnectorTimeout = 30 * time.Second

// RESTTypeDef is a generic "typed REST API" connector: fields declare a
// base_url and an auth header name, the secret supplies the auth header's
// value. It stands in for the concrete per-provider connectors (GitHub
// issues, Slack events, etc.) spec §4.10 names as examples — the dispatch
// shape (typed operation, secret resolved on demand, write gated through
// approval) is identical regardless of which external API sits behind it.
func RESTTypeDef() TypeDef {
	return TypeDef{
		Type: "rest",
		Operations: []Operation{
			{
				Name:        "get",
				Description: "GET a path under the connector's base_url",
				IsWrite:     false,
				Schema: tools.Schema{
					Required:   []string{"path"},
					Properties: map[string]tools.Property{"path": {Type: "string", Description: "path relative to base_url"}},
				},
				Execute: restCall(http.MethodGet),
			},
			{
				Name:        "post",
				Description: "POST a path under the connector's base_url",
				IsWrite:     true,
				Schema: tools.Schema{
					Required: []string{"path", "body"},
					Properties: map[string]tools.Property{
						"path": {Type: "string", Description: "path relative to base_url"},
						"body": {Type: "string", Description: "request body"},
					},
				},
				Execute: restCall(http.MethodPost),
			},
		},
	}
}

func restCall(method string) func(ctx context.Context, fields map[string]string, secret string, args map[string]any) (string, error) {
	return func(ctx context.Context, fields map[string]string, secret string, args map[string]any) (string, error) {
		baseURL := fields["base_url"]
		if baseURL == "" {
			return "", fmt.Errorf("connector missing base_url field")
		}
		path, _ := args["path"].(string)
		target := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")

		var bodyReader io.Reader
		if method == http.MethodPost {
			body, _ := args["body"].(string)
			bodyReader = strings.NewReader(body)
		}

		ctx, cancel := context.WithTimeout(ctx, restConnectorTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return "", err
		}
		if headerName := fields["auth_header"]; headerName != "" && secret != "" {
			req.Header.Set(headerName, secret)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("connector request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", fmt.Errorf("read connector response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("connector request failed: status %s: %s", resp.Status, string(data))
		}
		return string(data), nil
	}
}
