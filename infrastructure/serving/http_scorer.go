package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ahrav/go-bankprep/internal/ports"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// modelRequest is the body the model endpoint expects.
type modelRequest struct {
	AccessKey string       `json:"accessKey"`
	Request   modelPayload `json:"request"`
}

type modelPayload struct {
	RowID    string             `json:"row_id,omitempty"`
	Features map[string]float64 `json:"features"`
}

// modelResponse is the envelope the endpoint answers with.
type modelResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Response struct {
		Prediction  *int     `json:"prediction"`
		Probability *float64 `json:"probability"`
	} `json:"response"`
}

// httpScorer posts one JSON request per row.
type httpScorer struct {
	endpoint  string
	accessKey string
	client    *http.Client
}

func newHTTPScorer(endpoint, accessKey string, client *http.Client) *httpScorer {
	return &httpScorer{endpoint: endpoint, accessKey: accessKey, client: client}
}

func (s *httpScorer) Endpoint() string { return s.endpoint }

func (s *httpScorer) fail(req RowRequest, err error) *ports.ServingError {
	serr := ports.NewServingError(s.endpoint, req.Row, err)
	serr.RowID = req.RowID
	return serr
}

// Score sends req and classifies failures into ports sentinels so retry
// middleware can tell transient from permanent errors.
func (s *httpScorer) Score(ctx context.Context, req RowRequest) (RowResponse, error) {
	body, err := json.Marshal(modelRequest{
		AccessKey: s.accessKey,
		Request:   modelPayload{RowID: req.RowID, Features: req.Features},
	})
	if err != nil {
		return RowResponse{}, s.fail(req, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return RowResponse{}, s.fail(req, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return RowResponse{}, s.fail(req, classifyTransportError(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RowResponse{}, s.fail(req, fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err))
	}

	if resp.StatusCode != http.StatusOK {
		serr := s.fail(req, classifyStatus(resp.StatusCode, raw))
		serr.StatusCode = resp.StatusCode
		serr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return RowResponse{}, serr
	}

	var decoded modelResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return RowResponse{}, s.fail(req, fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err))
	}
	if !decoded.Success {
		return RowResponse{}, s.fail(req,
			fmt.Errorf("%w: model reported failure: %s", ports.ErrInvalidResponse, decoded.Error))
	}
	if decoded.Response.Prediction == nil {
		return RowResponse{}, s.fail(req,
			fmt.Errorf("%w: response has no prediction", ports.ErrInvalidResponse))
	}

	out := RowResponse{Label: *decoded.Response.Prediction}
	if decoded.Response.Probability != nil {
		out.Probability = *decoded.Response.Probability
	}
	return out, nil
}

// classifyStatus maps an HTTP status onto a ports sentinel.
func classifyStatus(status int, body []byte) error {
	msg := string(bytes.TrimSpace(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ports.ErrAuthenticationFailed, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ports.ErrRateLimited, msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ports.ErrTimeout, msg)
	case status >= 500:
		return fmt.Errorf("%w: %s", ports.ErrServiceUnavailable, msg)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ports.ErrInvalidResponse, status, msg)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ports.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err)
}

// parseRetryAfter reads the delay-seconds form of Retry-After.
func parseRetryAfter(v string) *time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}
