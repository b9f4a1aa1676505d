// Package daraja wraps the M-Pesa Daraja gateway: credential caching, STK
// push initiation, and push status queries. All calls are bounded by the
// configured timeout and surface typed errors so callers can distinguish
// timeouts from business rejections.
package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dukamoja/pos-backend/pkg/config"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
	"github.com/dukamoja/pos-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	timestampLayout = "20060102150405"

	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
)

var (
	errConsumerKeyRequired = errors.New("daraja consumer key is required")
	errShortCodeRequired   = errors.New("daraja short code is required")
	errPasskeyRequired     = errors.New("daraja passkey is required")
	errCallbackURLRequired = errors.New("daraja callback url is required")
	errInvalidDarajaEnv    = fmt.Errorf("daraja environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("daraja logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://sandbox.safaricom.co.ke",
	productionEnv: "https://api.safaricom.co.ke",
}

// Client exposes Daraja primitives with centralized auth, logging, and error mapping.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	environment    string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string
	tokenMargin    time.Duration
	logger         *logger.Logger

	now func() time.Time

	mu          sync.Mutex
	cachedToken string
	tokenExpiry time.Time
}

// NewClient initializes the Daraja wrapper and validates the credentials.
// A missing credential is a startup-time configuration error.
func NewClient(ctx context.Context, cfg config.DarajaConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.ConsumerKey) == "" || strings.TrimSpace(cfg.ConsumerSecret) == "" {
		return nil, errConsumerKeyRequired
	}
	if strings.TrimSpace(cfg.ShortCode) == "" {
		return nil, errShortCodeRequired
	}
	if strings.TrimSpace(cfg.Passkey) == "" {
		return nil, errPasskeyRequired
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		return nil, errCallbackURLRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	margin := cfg.TokenMargin
	if margin <= 0 {
		margin = time.Minute
	}

	c := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        baseURLs[env],
		environment:    env,
		consumerKey:    strings.TrimSpace(cfg.ConsumerKey),
		consumerSecret: strings.TrimSpace(cfg.ConsumerSecret),
		shortCode:      strings.TrimSpace(cfg.ShortCode),
		passkey:        strings.TrimSpace(cfg.Passkey),
		callbackURL:    strings.TrimSpace(cfg.CallbackURL),
		tokenMargin:    margin,
		logger:         logg,
		now:            time.Now,
	}

	logg.Info(ctx, "daraja client initialized")
	return c, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env != sandboxEnv && env != productionEnv {
		return "", errInvalidDarajaEnv
	}
	return env, nil
}

// Environment reports the normalized Daraja environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// ShortCode returns the configured business short code.
func (c *Client) ShortCode() string {
	if c == nil {
		return ""
	}
	return c.shortCode
}

// password derives the request signature: base64(shortcode+passkey+timestamp).
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.shortCode + c.passkey + timestamp))
}

func (c *Client) timestamp() string {
	return c.now().Format(timestampLayout)
}

// postJSON performs an authenticated POST and decodes the response body into dest.
func (c *Client) postJSON(ctx context.Context, path string, payload any, dest any) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err, "gateway call failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gatewayHTTPError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway response")
	}
	return nil
}

// classifyTransportError maps network failures to typed errors. Timeouts must
// be distinguishable from authentication and business rejections so the
// caller can decide whether a retry makes sense.
func classifyTransportError(err error, message string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func gatewayHTTPError(status int, body []byte) error {
	var envelope struct {
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	_ = json.Unmarshal(body, &envelope)

	msg := envelope.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("gateway returned HTTP %d", status)
	}
	return pkgerrors.New(pkgerrors.CodeGatewayRejected, msg).WithDetails(map[string]any{
		"http_status": status,
		"error_code":  envelope.ErrorCode,
	})
}
