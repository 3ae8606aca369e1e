package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/pkg/logger"
)

// cancelStatus is the provider's setStatus value for cancelling an activation.
const cancelStatus = "8"

// NumberOrder is the parsed reply to a getNumber call. The provider answers
// either "ACCESS_NUMBER:<activationId>:<phoneNumber>" or an arbitrary error
// string; Raw carries the latter verbatim.
type NumberOrder struct {
	Accepted     bool
	ActivationID string
	PhoneNumber  string
	Raw          string
}

type StatusReplyKind string

const (
	StatusReplyReceived     StatusReplyKind = "received"
	StatusReplyCancelled    StatusReplyKind = "cancelled"
	StatusReplyWaiting      StatusReplyKind = "waiting"
	StatusReplyUnrecognized StatusReplyKind = "unrecognized"
)

// StatusReply is the parsed reply to a getStatus call. Code is set only for
// received replies; Raw preserves unrecognized replies.
type StatusReply struct {
	Kind StatusReplyKind
	Code string
	Raw  string
}

// PriceTable maps countryId -> serviceId -> price -> available quantity.
// A missing entry means no stock, not zero cost.
type PriceTable map[string]map[string]map[string]int

// PriceFor returns the lowest quoted price for the service/country pair, or
// false when the pair is not quoted at all.
func (t PriceTable) PriceFor(country, service string) (float64, bool) {
	services, ok := t[country]
	if !ok {
		return 0, false
	}
	quotes, ok := services[service]
	if !ok || len(quotes) == 0 {
		return 0, false
	}

	best := 0.0
	found := false
	for quote := range quotes {
		price, err := strconv.ParseFloat(quote, 64)
		if err != nil {
			continue
		}
		if !found || price < best {
			best = price
			found = true
		}
	}

	return best, found
}

// ProviderClient talks to the upstream number-provisioning handler API. Every
// action is a GET with api_key and action query parameters; replies are either
// JSON documents or bare status strings depending on the action.
type ProviderClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     logger.Logger
	metrics *MetricsCollector
}

func NewProviderClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *ProviderClient {
	return &ProviderClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// WithMetrics records per-action request durations on the given collector.
func (c *ProviderClient) WithMetrics(metrics *MetricsCollector) *ProviderClient {
	c.metrics = metrics
	return c
}

func (c *ProviderClient) GetServers(ctx context.Context) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("action", "getServers")

	return c.catalogRequest(ctx, params)
}

func (c *ProviderClient) GetCountries(ctx context.Context, serverID string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("action", "getCountries")
	params.Set("server_id", serverID)

	return c.catalogRequest(ctx, params)
}

func (c *ProviderClient) GetServices(ctx context.Context, serverID, country string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("action", "getServices")
	params.Set("server_id", serverID)
	params.Set("country", country)

	return c.catalogRequest(ctx, params)
}

func (c *ProviderClient) GetPrices(ctx context.Context, serverID, country string) (PriceTable, error) {
	params := url.Values{}
	params.Set("action", "getPrices")
	params.Set("server_id", serverID)
	params.Set("country", country)

	raw, err := c.catalogRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	var table PriceTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("failed to parse price table: %w", err)
	}

	return table, nil
}

func (c *ProviderClient) GetNumber(ctx context.Context, service, country, serverID string) (NumberOrder, error) {
	params := url.Values{}
	params.Set("action", "getNumber")
	params.Set("service", service)
	params.Set("country", country)
	params.Set("server_id", serverID)

	resp, err := c.request(ctx, params)
	if err != nil {
		return NumberOrder{}, err
	}

	parts := strings.Split(resp, ":")
	if len(parts) != 3 || parts[0] != "ACCESS_NUMBER" {
		return NumberOrder{Raw: resp}, nil
	}

	return NumberOrder{
		Accepted:     true,
		ActivationID: parts[1],
		PhoneNumber:  parts[2],
	}, nil
}

func (c *ProviderClient) GetStatus(ctx context.Context, activationID string) (StatusReply, error) {
	params := url.Values{}
	params.Set("action", "getStatus")
	params.Set("id", activationID)

	resp, err := c.request(ctx, params)
	if err != nil {
		return StatusReply{}, err
	}

	switch {
	case strings.HasPrefix(resp, "STATUS_OK:"):
		return StatusReply{Kind: StatusReplyReceived, Code: strings.TrimPrefix(resp, "STATUS_OK:"), Raw: resp}, nil
	case resp == "STATUS_CANCEL":
		return StatusReply{Kind: StatusReplyCancelled, Raw: resp}, nil
	case resp == "STATUS_WAIT_CODE":
		return StatusReply{Kind: StatusReplyWaiting, Raw: resp}, nil
	default:
		return StatusReply{Kind: StatusReplyUnrecognized, Raw: resp}, nil
	}
}

// CancelActivation asks the provider to cancel an activation. The reply is
// advisory only; callers must not treat a false acknowledgement as fatal.
func (c *ProviderClient) CancelActivation(ctx context.Context, activationID string) (bool, error) {
	params := url.Values{}
	params.Set("action", "setStatus")
	params.Set("id", activationID)
	params.Set("status", cancelStatus)

	resp, err := c.request(ctx, params)
	if err != nil {
		return false, err
	}

	if strings.Contains(resp, "ACCESS_CANCEL") {
		return true, nil
	}

	c.log.Warn("Provider declined cancellation",
		logger.Field{Key: "activation_id", Value: activationID},
		logger.Field{Key: "reply", Value: resp},
	)
	return false, nil
}

// catalogRequest handles the actions whose success replies are JSON. The
// provider signals errors on these actions with a bare string body.
func (c *ProviderClient) catalogRequest(ctx context.Context, params url.Values) (json.RawMessage, error) {
	resp, err := c.request(ctx, params)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(resp)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil, &models.ProviderRejectedError{Message: resp}
	}

	return json.RawMessage(trimmed), nil
}

func (c *ProviderClient) request(ctx context.Context, params url.Values) (string, error) {
	params.Set("api_key", c.apiKey)
	requestURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build provider request: %w", err)
	}

	started := time.Now()
	defer func() {
		c.metrics.ObserveProviderRequest(params.Get("action"), time.Since(started).Seconds())
	}()

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	return string(body), nil
}
