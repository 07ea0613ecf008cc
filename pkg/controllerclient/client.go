// Package controllerclient implements the HTTP/XML client toward the
// OpenNaaS server: a thin http.Client wrapper, one method per upstream
// operation, transport errors always wrapped into the domain error family.
package controllerclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opennaas/roadm-am/internal/domainerr"
	"github.com/opennaas/roadm-am/internal/telemetry"
)

// Config carries the connection details for one OpenNaaS server.
type Config struct {
	ServerAddress    string
	ServerPort       int
	User             string
	Password         string
	UseTLS           bool
	CheckCredentials bool
}

// Client calls the OpenNaaS controller's HTTP/XML API.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a controller client. The timeout bounds every upstream
// request so a stuck OpenNaaS server cannot hang a worker indefinitely. A
// nil logger falls back to slog.Default().
func NewClient(cfg Config, timeout time.Duration, logger *slog.Logger) *Client {
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		baseURL:    fmt.Sprintf("%s://%s:%d/opennaas", scheme, cfg.ServerAddress, cfg.ServerPort),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// do issues req, recording duration/error metrics under operation, and
// returns the response body on any 2xx status.
func (c *Client) do(ctx context.Context, operation, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, domainerr.ONS(fmt.Sprintf("building %s request", operation), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/xml")
	}
	if c.cfg.CheckCredentials {
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}
	// A fresh correlation id per upstream call, so its trail through the
	// OpenNaaS server's own logs can be matched back to this request.
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	telemetry.ControllerRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ControllerErrorsTotal.WithLabelValues(operation).Inc()
		return nil, domainerr.ONS(fmt.Sprintf("calling OpenNaaS %s", operation), err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.ControllerErrorsTotal.WithLabelValues(operation).Inc()
		return nil, domainerr.ONS(fmt.Sprintf("reading OpenNaaS %s response", operation), err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domainerr.NotFound("OpenNaaS %s", operation)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		telemetry.ControllerErrorsTotal.WithLabelValues(operation).Inc()
		return nil, domainerr.ONS(fmt.Sprintf("OpenNaaS %s returned HTTP %d", operation, resp.StatusCode), nil)
	}
	return respBody, nil
}

// decodeEntryList parses an <entry> list response. A malformed body is
// logged by the caller and downgraded to an empty list.
func decodeEntryList(body []byte) ([]string, error) {
	var list entryList
	if err := xml.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	return list.Entries, nil
}

// GetResourceTypes lists every resource type OpenNaaS manages.
func (c *Client) GetResourceTypes(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, "getResourceTypes", http.MethodGet, "/resources/getResourceTypes", nil)
	if err != nil {
		return nil, err
	}
	types, err := decodeEntryList(body)
	if err != nil {
		c.logger.Error("getResourceTypes: malformed XML, downgrading to empty result", "error", err)
		return nil, nil
	}
	return types, nil
}

// ListResourcesByType lists every resource name of the given type.
func (c *Client) ListResourcesByType(ctx context.Context, resourceType string) ([]string, error) {
	body, err := c.do(ctx, "listResourcesByType", http.MethodGet, "/resources/listResourcesByType/"+resourceType, nil)
	if err != nil {
		return nil, err
	}
	names, err := decodeEntryList(body)
	if err != nil {
		c.logger.Error("listResourcesByType: malformed XML, downgrading to empty result", "type", resourceType, "error", err)
		return nil, nil
	}
	return names, nil
}

// GetEndPoints lists every endpoint id on the named device.
func (c *Client) GetEndPoints(ctx context.Context, resourceType, name string) ([]string, error) {
	path := fmt.Sprintf("/%s/%s/xconnect/getEndPoints", resourceType, name)
	body, err := c.do(ctx, "getEndPoints", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	eps, err := decodeEntryList(body)
	if err != nil {
		c.logger.Error("getEndPoints: malformed XML, downgrading to empty result", "resource", name, "error", err)
		return nil, nil
	}
	return eps, nil
}

// GetLabels lists every label id available on one endpoint.
func (c *Client) GetLabels(ctx context.Context, resourceType, name, endpoint string) ([]string, error) {
	path := fmt.Sprintf("/%s/%s/xconnect/getLabels/%s", resourceType, name, endpoint)
	body, err := c.do(ctx, "getLabels", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	labels, err := decodeEntryList(body)
	if err != nil {
		c.logger.Error("getLabels: malformed XML, downgrading to empty result", "resource", name, "endpoint", endpoint, "error", err)
		return nil, nil
	}
	return labels, nil
}

// ListXConnects lists every active cross-connect instance id on the device.
func (c *Client) ListXConnects(ctx context.Context, resourceType, name string) ([]string, error) {
	path := fmt.Sprintf("/%s/%s/xconnect/", resourceType, name)
	body, err := c.do(ctx, "listXConnects", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	ids, err := decodeEntryList(body)
	if err != nil {
		c.logger.Error("listXConnects: malformed XML, downgrading to empty result", "resource", name, "error", err)
		return nil, nil
	}
	return ids, nil
}

// GetXConnect describes a single cross-connect by instance id, returning its
// full 5-tuple. A parse error is logged and yields no result.
func (c *Client) GetXConnect(ctx context.Context, resourceType, name, instanceID string) (XConnection, bool, error) {
	path := fmt.Sprintf("/%s/%s/xconnect/%s", resourceType, name, instanceID)
	body, err := c.do(ctx, "getXConnect", http.MethodGet, path, nil)
	if err != nil {
		return XConnection{}, false, err
	}
	var conn XConnection
	if err := xml.Unmarshal(body, &conn); err != nil {
		c.logger.Error("getXConnect: malformed XML, skipping tuple", "resource", name, "instance", instanceID, "error", err)
		return XConnection{}, false, nil
	}
	return conn, true, nil
}

// CreateXConnect posts a new cross-connect. OpenNaaS answers with the
// instance id it assigned as a bare text body; a mismatch against the id the
// caller sent fails the call.
func (c *Client) CreateXConnect(ctx context.Context, resourceType, name string, conn XConnection) error {
	payload, err := xml.Marshal(conn)
	if err != nil {
		return domainerr.ONS("encoding xConnection", err)
	}
	path := fmt.Sprintf("/%s/%s/xconnect/", resourceType, name)
	body, err := c.do(ctx, "createXConnect", http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	if assigned := strings.TrimSpace(string(body)); assigned != conn.InstanceID {
		return domainerr.ONS(fmt.Sprintf(
			"OpenNaaS assigned instance id %q, expected %q", assigned, conn.InstanceID), nil)
	}
	return nil
}

// DeleteXConnect removes a cross-connect by instance id.
func (c *Client) DeleteXConnect(ctx context.Context, resourceType, name, instanceID string) error {
	path := fmt.Sprintf("/%s/%s/xconnect/%s", resourceType, name, instanceID)
	_, err := c.do(ctx, "deleteXConnect", http.MethodDelete, path, nil)
	return err
}

// QueueExecute drains the device's pending actions. Any ERROR status in the
// response fails the call with the offending actionID.
func (c *Client) QueueExecute(ctx context.Context, resourceType, name string) error {
	path := fmt.Sprintf("/%s/%s/queue/execute", resourceType, name)
	body, err := c.do(ctx, "queueExecute", http.MethodPost, path, nil)
	if err != nil {
		return err
	}

	var result queueExecuteResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return domainerr.ONS("decoding queue/execute response", err)
	}
	for _, r := range result.Responses {
		if r.Status == "ERROR" || r.Status == "error" {
			telemetry.QueueExecuteErrorsTotal.Inc()
			return domainerr.ONS(fmt.Sprintf("queue/execute action %s failed", r.ActionID), nil)
		}
	}
	return nil
}
