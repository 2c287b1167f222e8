// FILE: thermwatch/src/internal/sink/rest_store.go
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"thermwatch/src/internal/config"
	"thermwatch/src/internal/core"
	"thermwatch/src/internal/version"

	"github.com/lixenwraith/log"
	"github.com/valyala/fasthttp"
)

// restRow is the row inserted into the alert table
type restRow struct {
	SensorID         string  `json:"sensor_id"`
	Temperature      float64 `json:"temperature"`
	Vibration        float64 `json:"vibration"`
	Timestamp        int64   `json:"timestamp"`
	RepairAction     string  `json:"repair_action"`
	AnnotationStatus string  `json:"annotation_status"`
}

// RESTStore inserts alerts through a PostgREST endpoint such as Supabase
type RESTStore struct {
	endpoint string
	apiKey   string
	client   *fasthttp.Client
	logger   *log.Logger
}

// NewRESTStore creates a store posting to {url}/rest/v1/{table}
func NewRESTStore(cfg config.StoreConfig, logger *log.Logger) *RESTStore {
	endpoint := strings.TrimSuffix(cfg.URL, "/") + "/rest/v1/" + cfg.Table

	s := &RESTStore{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     10,
			MaxIdleConnDuration: 10 * time.Second,
			ReadTimeout:         cfg.Timeout(),
			WriteTimeout:        cfg.Timeout(),
		},
		logger: logger,
	}

	logCredential(cfg.APIKey, time.Now(), logger)

	return s
}

func (s *RESTStore) Write(ctx context.Context, alert core.Alert) (int, error) {
	body, err := json.Marshal(restRow{
		SensorID:         alert.SensorID,
		Temperature:      alert.Temperature,
		Vibration:        alert.Vibration,
		Timestamp:        alert.ObservedAt,
		RepairAction:     alert.RepairAction,
		AnnotationStatus: string(alert.AnnotationStatus),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alert row: %w", err)
	}

	// Acquire resources per call, release immediately after use
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Prefer", "return=minimal")
	req.Header.Set("X-Request-Id", alert.ID)
	req.Header.Set("User-Agent", version.UserAgent())
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.client.DoDeadline(req, resp, deadline)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		// Wait for the in-flight request so req/resp are not released early
		<-errCh
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}

	code := resp.StatusCode()
	if code < 200 || code >= 300 {
		s.logger.Debug("msg", "Store responded with error status",
			"component", "rest_store",
			"status_code", code,
			"response", string(resp.Body()))
	}
	return code, nil
}

func (s *RESTStore) Name() string { return "rest" }

func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
