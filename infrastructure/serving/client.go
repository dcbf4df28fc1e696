// Package serving scores feature matrices against a deployed model endpoint
// with built-in support for rate limiting, retries, circuit breaking,
// metrics, and tracing.
//
// Each matrix row is sent as one request through a Scorer. Cross-cutting
// behavior is layered on with Middleware, outermost first:
//
//	client, err := serving.NewClient(serving.ClientConfig{
//	    Endpoint:  "https://modelservice.example.com/model",
//	    AccessKey: os.Getenv("BANKPREP_ACCESS_KEY"),
//	    Middleware: []serving.Middleware{
//	        serving.MetricsMiddleware(collector),
//	        serving.RetryMiddleware(3, 200*time.Millisecond, 5*time.Second),
//	        serving.RateLimitMiddleware(20, 40),
//	    },
//	})
//	predictions, err := client.Predict(ctx, matrix)
package serving

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.ModelServer = (*Client)(nil)

// RowRequest is one matrix row addressed to the model.
type RowRequest struct {
	// Row is the position of the row in its matrix.
	Row   int
	RowID string

	// Features maps column name to value.
	Features map[string]float64
}

// RowResponse is the model's answer for one row.
type RowResponse struct {
	Label       int
	Probability float64
}

// Scorer sends one row to a model and returns its prediction. Middleware
// wraps any conforming implementation.
type Scorer interface {
	Score(ctx context.Context, req RowRequest) (RowResponse, error)

	// Endpoint names the model endpoint for logs, metrics, and errors.
	Endpoint() string
}

// Middleware wraps a Scorer to add cross-cutting behavior.
type Middleware func(Scorer) Scorer

// ClientConfig holds the options for creating a Client.
type ClientConfig struct {
	// Endpoint is the model URL requests are posted to.
	Endpoint string

	// AccessKey authenticates requests to the model.
	AccessKey string

	// Timeout bounds each HTTP request. Zero uses DefaultTimeout.
	Timeout time.Duration

	// Concurrency is the number of rows scored in parallel. Zero means 1.
	Concurrency int

	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client

	// Middleware is applied in order; the first entry is the outermost.
	Middleware []Middleware
}

// Client implements ports.ModelServer on top of a Scorer chain.
type Client struct {
	scorer      Scorer
	concurrency int
}

// NewClient validates cfg and assembles the HTTP scorer and its middleware.
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint, err := ValidateEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("model endpoint: %w", err)
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("model access key is required: %w", ports.ErrAuthenticationFailed)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := ValidateTimeout(cfg.Timeout)
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var scorer Scorer = newHTTPScorer(endpoint, cfg.AccessKey, httpClient)
	return NewClientWithScorer(scorer, cfg.Concurrency, cfg.Middleware...), nil
}

// NewClientWithScorer wraps an existing Scorer. It is the seam tests and
// alternative transports use.
func NewClientWithScorer(scorer Scorer, concurrency int, middleware ...Middleware) *Client {
	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(middleware) - 1; i >= 0; i-- {
		scorer = middleware[i](scorer)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Client{scorer: scorer, concurrency: concurrency}
}

// Predict scores every row of matrix and returns predictions in row order.
// The first failing row cancels the rest and its error is returned. The
// error names the row: a *ports.ServingError carries its RowID, anything
// else is wrapped in a *domain.RowError.
func (c *Client) Predict(ctx context.Context, matrix *domain.FeatureMatrix) ([]domain.Prediction, error) {
	if matrix == nil || matrix.Len() == 0 {
		return nil, fmt.Errorf("predict: %w", domain.ErrEmptyBatch)
	}

	out := make([]domain.Prediction, matrix.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, row := range matrix.Rows {
		req := RowRequest{Row: i, Features: rowFeatures(matrix.Columns, row)}
		if i < len(matrix.RowIDs) {
			req.RowID = matrix.RowIDs[i]
		}
		g.Go(func() error {
			resp, err := c.scorer.Score(gctx, req)
			if err != nil {
				return rowFailure(req, err)
			}
			out[req.Row] = domain.Prediction{
				Row:         req.Row,
				RowID:       req.RowID,
				Label:       resp.Label,
				Probability: resp.Probability,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func rowFailure(req RowRequest, err error) error {
	var serr *ports.ServingError
	if errors.As(err, &serr) {
		if serr.RowID == "" {
			serr.RowID = req.RowID
		}
		return err
	}
	return &domain.RowError{Row: req.Row, RowID: req.RowID, Err: err}
}

func rowFeatures(columns []string, row []float64) map[string]float64 {
	features := make(map[string]float64, len(columns))
	for j, name := range columns {
		features[name] = row[j]
	}
	return features
}
