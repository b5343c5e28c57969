package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"alphadip-config/types"
)

// ErrNotAuthorized is returned when the web app answers with a Google sign-in
// page, which happens when the deployment is not shared with "Anyone".
var ErrNotAuthorized = errors.New("apps script deployment requires sign-in")

// AppsScriptClient talks to a deployed Apps Script web app
type AppsScriptClient struct {
	url    string
	client *resty.Client
}

// NewAppsScriptClient creates a client for the web app at url.
// If timeout is 0, no timeout is set.
func NewAppsScriptClient(url string, timeout time.Duration) *AppsScriptClient {
	client := resty.New().
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		// Apps Script answers /exec with a redirect to script.googleusercontent.com
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &AppsScriptClient{url: url, client: client}
}

// Ping issues a GET against the web app and accepts any 2xx response
func (c *AppsScriptClient) Ping(ctx context.Context) (*types.ScriptInfo, error) {
	logger := zap.L().With(zap.String("task", "ping_apps_script"))
	logger.Info("ping_apps_script started")

	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("ping apps script: %w", err)
	}

	if err := checkScriptResponse(resp); err != nil {
		logger.Warn("apps script rejected ping",
			zap.Int("status_code", resp.StatusCode()),
			zap.Error(err),
		)
		return nil, err
	}

	info := &types.ScriptInfo{
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
	}
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		info.FinalURL = resp.RawResponse.Request.URL.String()
	}

	logger.Info("ping_apps_script complete", zap.Int("status_code", info.StatusCode))
	return info, nil
}

// Call posts {"action": action, "payload": payload} and decodes the JSON reply into out.
// out may be nil when the reply is not needed.
func (c *AppsScriptClient) Call(ctx context.Context, action string, payload any, out any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(types.ScriptCall{Action: action, Payload: payload}).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("call %s: %w", action, err)
	}

	if err := checkScriptResponse(resp); err != nil {
		return fmt.Errorf("call %s: %w", action, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}

func checkScriptResponse(resp *resty.Response) error {
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("apps script returned status %d: %s", resp.StatusCode(), truncate(resp.Body(), 512))
	}
	if isSignInPage(resp) {
		return ErrNotAuthorized
	}
	return nil
}

// signInHost serves the Google account login that private deployments redirect to
const signInHost = "accounts.google.com"

func isSignInPage(resp *resty.Response) bool {
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		if strings.EqualFold(raw.Request.URL.Hostname(), signInHost) {
			return true
		}
	}
	if !strings.HasPrefix(resp.Header().Get("Content-Type"), "text/html") {
		return false
	}
	body := resp.Body()
	return bytes.Contains(body, []byte(signInHost+"/ServiceLogin")) ||
		bytes.Contains(body, []byte(signInHost+"/v3/signin"))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
