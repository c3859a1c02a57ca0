package signalwire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bobbystable/voicepay-backend/pkg/config"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
)

var (
	errSpaceURLRequired  = errors.New("signalwire space url is required")
	errProjectIDRequired = errors.New("signalwire project id is required")
	errAPITokenRequired  = errors.New("signalwire api token is required")
	errLoggerRequired    = errors.New("signalwire logger is required")
)

// Client exposes SignalWire primitives with centralized auth, logging, and error mapping.
type Client struct {
	httpClient    *http.Client
	spaceURL      string
	projectID     string
	apiToken      string
	signingSecret string
	fromNumber    string
	connectorURL  string
	logger        *logger.Logger
}

// NewClient initializes the SignalWire wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SignalWireConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}

	spaceURL := strings.TrimSpace(cfg.SpaceURL)
	if spaceURL == "" {
		return nil, errSpaceURLRequired
	}
	spaceURL = strings.TrimRight(spaceURL, "/")
	if !strings.HasPrefix(spaceURL, "http") {
		spaceURL = "https://" + spaceURL
	}

	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	apiToken := strings.TrimSpace(cfg.APIToken)
	if apiToken == "" {
		return nil, errAPITokenRequired
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: cfg.HTTPTimeout},
		spaceURL:      spaceURL,
		projectID:     projectID,
		apiToken:      apiToken,
		signingSecret: strings.TrimSpace(cfg.SigningSecret),
		fromNumber:    strings.TrimSpace(cfg.FromNumber),
		connectorURL:  cfg.ConnectorURL(),
		logger:        logg,
	}

	logg.Info(ctx, "signalwire client initialized")
	return c, nil
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// FromNumber returns the configured outbound caller id.
func (c *Client) FromNumber() string {
	if c == nil {
		return ""
	}
	return c.fromNumber
}

// ConnectorURL returns the payment connector callback endpoint.
func (c *Client) ConnectorURL() string {
	if c == nil {
		return ""
	}
	return c.connectorURL
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("signalwire %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("signalwire %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "cvv", "cvc", "secret", "phone", "body"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
