package providers

import (
	"time"

	"flight-radar/internal/logger"

	"github.com/go-resty/resty/v2"
)

// newClient returns a resty client that logs every exchange at debug level.
// Retries are off: callers run under tight deadlines and treat a failure as a miss.
func newClient(clientName, baseURL string, timeout time.Duration) *resty.Client {
	log := logger.Component("http_client")

	client := resty.New().
		SetHeader("User-Agent", "flight-radar/1.0").
		SetTimeout(timeout).
		SetRetryCount(0)
	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}

	client.OnAfterResponse(func(c *resty.Client, r *resty.Response) error {
		raw := r.Request.RawRequest
		if raw == nil {
			return nil
		}
		log.Debug().
			Str("client", clientName).
			Int("status", r.StatusCode()).
			Str("method", raw.Method).
			Str("path", raw.URL.Path).
			Str("query", raw.URL.RawQuery).
			Dur("latency", r.Time()).
			Msg("HTTP client request")
		return nil
	})
	client.OnError(func(r *resty.Request, err error) {
		log.Debug().
			Err(err).
			Str("client", clientName).
			Str("method", r.Method).
			Str("url", r.URL).
			Msg("HTTP client request failed")
	})
	return client
}
