package tools

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const defaultBrowseTimeout = 30 * time.Second

// RegisterBrowserTool adds net.browse: a NET-class tool that renders an
// allowlisted page in a headless Chromium (spec §4.5's built-in HTTP
// catalogue entry, grounded on the teacher's go-rod usage for pages that
// http.get's plain request can't render — client-side JS content).
// allowed names the hosts the tool may navigate to.
func RegisterBrowserTool(reg *Registry, allowed []string) {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, h := range allowed {
		allowSet[h] = struct{}{}
	}

	reg.MustRegister(&Tool{
		Name:             "net.browse",
		Description:      "Render an allowlisted page in a headless browser and return its visible text.",
		Capability:       CapabilityNet,
		InitiatesNetwork: true,
		Idempotency:      Idempotent,
		Schema: Schema{
			Required:   []string{"url"},
			Properties: map[string]Property{"url": {Type: "string", Description: "target URL"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeBrowse(ctx, allowSet, args)
		},
	})
}

func executeBrowse(ctx context.Context, allowSet map[string]struct{}, args map[string]any) (string, error) {
	target, _ := args["url"].(string)
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("net.browse: invalid url: %w", err)
	}
	if _, ok := allowSet[u.Hostname()]; !ok {
		return "", fmt.Errorf("net.browse: host %q is not in the allowed host set", u.Hostname())
	}

	ctx, cancel := context.WithTimeout(ctx, defaultBrowseTimeout)
	defer cancel()

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return "", fmt.Errorf("net.browse: launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("net.browse: connect: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return "", fmt.Errorf("net.browse: open page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("net.browse: wait load: %w", err)
	}

	body, err := page.Element("body")
	if err != nil {
		return "", fmt.Errorf("net.browse: locate body: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return "", fmt.Errorf("net.browse: read text: %w", err)
	}

	if len(text) > defaultMaxOutputLen {
		text = text[:defaultMaxOutputLen] + "\n...[truncated]"
	}
	return text, nil
}
