package probes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/culture-union/checkpulse/models"
)

// HTTPProber performs a GET against the target and judges success by the
// response status code: anything below 400 is ok.
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProber) Probe(ctx context.Context, task models.Task) models.Result {
	target, err := prepareURL(task.Target)
	if err != nil {
		return models.Result{
			Status: models.StatusError,
			Error:  fmt.Sprintf("invalid url: %v", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.Result{
			Status: models.StatusError,
			Error:  err.Error(),
		}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		return models.Result{
			Status:       models.StatusFail,
			ResponseTime: &elapsed,
			Data:         &models.ResultData{Type: models.CheckHTTP, URL: target},
			Error:        err.Error(),
		}
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	status := models.StatusOK
	if resp.StatusCode >= http.StatusBadRequest {
		status = models.StatusFail
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	code := resp.StatusCode
	return models.Result{
		Status:       status,
		Code:         &code,
		ResponseTime: &elapsed,
		Data: &models.ResultData{
			Type:    models.CheckHTTP,
			Headers: headers,
			URL:     resp.Request.URL.String(),
		},
	}
}

// prepareURL prepends http:// when the target carries no scheme, so bare
// hostnames are accepted everywhere a URL is.
func prepareURL(target string) (string, error) {
	if target == "" {
		return "", fmt.Errorf("empty target")
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("no host in %q", target)
	}
	return parsed.String(), nil
}
