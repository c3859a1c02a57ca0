package signalwire

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/bobbystable/voicepay-backend/pkg/errors"
)

// SendSMS delivers a text message through the LaML messaging API.
func (c *Client) SendSMS(ctx context.Context, to, body string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "signalwire client not initialized")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sms recipient is required")
	}
	if strings.TrimSpace(body) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sms body is required")
	}
	if c.fromNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sms from number is not configured")
	}

	endpoint := fmt.Sprintf("%s/api/laml/2010-04-01/Accounts/%s/Messages.json", c.spaceURL, c.projectID)
	form := url.Values{}
	form.Set("From", c.fromNumber)
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build sms request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.projectID, c.apiToken)

	c.log(ctx, "request", "send_sms", map[string]any{"to": to})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", "send_sms", map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send sms")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("messaging api returned %d", resp.StatusCode)
		c.log(ctx, "error", "send_sms", map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send sms")
	}

	c.log(ctx, "response", "send_sms", map[string]any{"status": resp.StatusCode})
	return nil
}
