package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"datafeed-go/pkg/log"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// RestOptions - таймаут и лимит запросов к бирже
type RestOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// CexRestClient - базовый клиент для REST-запросов к CEX.
// Все запросы проходят через rate.Limiter биржи, повторов нет.
type CexRestClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

func NewCexRestClient(name, baseURL string, opts RestOptions) *CexRestClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "datafeed-go")

	return &CexRestClient{
		client:  client,
		limiter: rate.NewLimiter(limit, opts.Burst),
		logger:  log.New("rest-" + name),
	}
}

// BaseURL возвращает адрес, к которому добавляются относительные пути
func (c *CexRestClient) BaseURL() string {
	return c.client.BaseURL
}

// GetRaw выполняет GET-запрос и возвращает тело ответа
func (c *CexRestClient) GetRaw(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	c.logger.Debug("[REST] GET %s -> %d (%s)", resp.Request.URL, resp.StatusCode(), resp.Time())

	if resp.IsError() {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return resp.Body(), nil
}

// GetJSON выполняет GET-запрос и декодирует JSON-ответ
func (c *CexRestClient) GetJSON(ctx context.Context, path string, query map[string]string, result interface{}) error {
	body, err := c.GetRaw(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// PostJSON отправляет body как есть (подпись считается по этим же байтам) и декодирует ответ
func (c *CexRestClient) PostJSON(ctx context.Context, path string, headers map[string]string, body []byte, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	c.logger.Debug("[REST] POST %s -> %d", path, resp.StatusCode())

	if resp.IsError() {
		return &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if result == nil || resp.StatusCode() == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
