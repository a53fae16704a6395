package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/types"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
)

// BreakerConfig configures the circuit breaker guarding run dispatch.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold" json:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests" json:"min_requests"`
}

// RemoteConfig configures a RemoteRunner.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// RequestTimeout bounds the dispatch and cancel calls.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// CancelTimeout bounds how long the event feed is read after a cancel
	// request while waiting for the backend's acknowledgement.
	CancelTimeout time.Duration `yaml:"cancel_timeout" json:"cancel_timeout"`
	Breaker       BreakerConfig `yaml:"breaker" json:"breaker"`
}

// DefaultRemoteConfig returns the default remote runner configuration.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		RequestTimeout: 10 * time.Second,
		CancelTimeout:  5 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
	}
}

// RemoteEvent is one message of a remote run's event feed.
type RemoteEvent struct {
	Type      string            `json:"type"`
	NodeID    string            `json:"nodeId,omitempty"`
	NodeType  workflow.NodeType `json:"nodeType,omitempty"`
	Completed int               `json:"completed,omitempty"`
	Total     int               `json:"total,omitempty"`
	Usage     *RemoteUsage      `json:"usage,omitempty"`
	Level     string            `json:"level,omitempty"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
	Result    any               `json:"result,omitempty"`
}

// RemoteUsage is the usage payload of a remote event.
type RemoteUsage struct {
	TokensUsed  int     `json:"tokensUsed"`
	APICalls    int     `json:"apiCalls"`
	MemoryUsage int64   `json:"memoryUsage"`
	Cost        float64 `json:"cost"`
}

// Remote event types.
const (
	RemoteProgress     = "progress"
	RemoteNodeStarted  = "node_started"
	RemoteNodeFinished = "node_finished"
	RemoteUsageEvent   = "usage"
	RemoteLog          = "log"
	RemoteCompleted    = "completed"
	RemoteFailed       = "failed"
	RemoteCancelled    = "cancelled"
)

type dispatchRequest struct {
	ExecutionID string               `json:"executionId"`
	Workflow    *workflow.Definition `json:"workflow"`
	Input       map[string]any       `json:"input,omitempty"`
}

type dispatchResponse struct {
	RunID string `json:"runId"`
}

// RemoteRunner dispatches runs to an execution backend over HTTP and
// follows them through a websocket event feed:
//
//	POST {base}/api/v1/runs              → {"runId": ...}
//	GET  {base}/api/v1/runs/{id}/events  (websocket, RemoteEvent JSON)
//	POST {base}/api/v1/runs/{id}/cancel
type RemoteRunner struct {
	cfg     RemoteConfig
	base    *url.URL
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ execution.Runner = (*RemoteRunner)(nil)

// NewRemoteRunner creates a remote runner. client may be nil.
func NewRemoteRunner(cfg RemoteConfig, client *http.Client, logger *zap.Logger) (*RemoteRunner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid remote runner base url %q", cfg.BaseURL)
	}
	if client == nil {
		client = &http.Client{}
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = DefaultRemoteConfig().CancelTimeout
	}
	logger = logger.With(zap.String("component", "remote_runner"))

	bc := cfg.Breaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote_runner",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &RemoteRunner{
		cfg:     cfg,
		base:    base,
		client:  client,
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Run implements execution.Runner.
func (r *RemoteRunner) Run(ctx context.Context, req execution.Request, rep execution.Reporter) (any, error) {
	runID, err := r.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	r.logger.Info("remote run dispatched",
		zap.String("execution_id", req.ExecutionID),
		zap.String("run_id", runID),
	)

	// The feed outlives ctx so the backend's cancellation acknowledgement
	// can still be read.
	feedCtx, stopFeed := context.WithCancel(context.WithoutCancel(ctx))
	defer stopFeed()

	conn, _, err := websocket.Dial(feedCtx, r.endpoint("ws", "runs", runID, "events"), &websocket.DialOptions{
		HTTPClient: r.client,
	})
	if err != nil {
		r.cancel(context.WithoutCancel(ctx), runID)
		return nil, types.NewError(types.ErrUpstreamError, "connect to remote run events").WithCause(err)
	}
	defer conn.CloseNow()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			r.cancel(context.WithoutCancel(ctx), runID)
			t := time.NewTimer(r.cfg.CancelTimeout)
			defer t.Stop()
			select {
			case <-t.C:
				stopFeed()
			case <-watchDone:
			}
		case <-watchDone:
		}
	}()

	for {
		var ev RemoteEvent
		if err := wsjson.Read(feedCtx, conn, &ev); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, types.NewError(types.ErrUpstreamError, "remote run event feed closed").WithCause(err)
		}

		switch ev.Type {
		case RemoteProgress:
			rep.Progress(ev.Completed, ev.Total)
		case RemoteNodeStarted:
			rep.NodeStarted(ev.NodeID, ev.NodeType)
		case RemoteNodeFinished:
			var nodeErr error
			if ev.Error != "" {
				nodeErr = errors.New(ev.Error)
			}
			rep.NodeFinished(ev.NodeID, nodeErr)
		case RemoteUsageEvent:
			if ev.Usage != nil {
				rep.Usage(execution.Usage{
					TokensUsed:  ev.Usage.TokensUsed,
					APICalls:    ev.Usage.APICalls,
					MemoryUsage: ev.Usage.MemoryUsage,
					Cost:        ev.Usage.Cost,
				})
			}
		case RemoteLog:
			rep.Log(logLevel(ev.Level), ev.NodeID, ev.Message)
		case RemoteCompleted:
			conn.Close(websocket.StatusNormalClosure, "")
			return ev.Result, nil
		case RemoteFailed:
			conn.Close(websocket.StatusNormalClosure, "")
			msg := ev.Error
			if msg == "" {
				msg = "remote run failed"
			}
			return nil, types.NewError(types.ErrNodeFailed, msg).WithNodeID(ev.NodeID)
		case RemoteCancelled:
			conn.Close(websocket.StatusNormalClosure, "")
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, types.NewError(types.ErrCancelled, "remote run cancelled by the backend")
		default:
			r.logger.Debug("unknown remote event ignored", zap.String("type", ev.Type))
		}
	}
}

func (r *RemoteRunner) dispatch(ctx context.Context, req execution.Request) (string, error) {
	body, err := json.Marshal(dispatchRequest{
		ExecutionID: req.ExecutionID,
		Workflow:    req.Definition,
		Input:       req.Input,
	})
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "encode workflow").WithCause(err)
	}

	out, err := r.breaker.Execute(func() (any, error) {
		status, data, err := r.post(ctx, r.endpoint("http", "runs"), body)
		if err != nil {
			return nil, err
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("remote backend returned %d: %s", status, strings.TrimSpace(string(data)))
		}
		return postResult{status: status, data: data}, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "", types.NewError(types.ErrServiceUnavailable, "remote runner circuit open").
			WithCause(err).
			WithRetryable(true)
	case err != nil:
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", types.NewError(types.ErrUpstreamError, "dispatch remote run").WithCause(err).WithRetryable(true)
	}

	res := out.(postResult)
	if res.status < 200 || res.status >= 300 {
		return "", types.Errorf(types.ErrUpstreamError, "remote backend rejected run (%d): %s",
			res.status, strings.TrimSpace(string(res.data)))
	}
	var resp dispatchResponse
	if err := json.Unmarshal(res.data, &resp); err != nil || resp.RunID == "" {
		return "", types.NewError(types.ErrUpstreamError, "remote backend returned no run id").WithCause(err)
	}
	return resp.RunID, nil
}

type postResult struct {
	status int
	data   []byte
}

func (r *RemoteRunner) post(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	if r.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func (r *RemoteRunner) cancel(ctx context.Context, runID string) {
	status, _, err := r.post(ctx, r.endpoint("http", "runs", runID, "cancel"), nil)
	if err != nil || status >= 300 {
		r.logger.Warn("remote cancel failed",
			zap.String("run_id", runID),
			zap.Int("status", status),
			zap.Error(err),
		)
		return
	}
	r.logger.Info("remote cancel requested", zap.String("run_id", runID))
}

// endpoint joins path segments under {base}/api/v1. scheme "ws" maps http
// to ws and https to wss.
func (r *RemoteRunner) endpoint(scheme string, segments ...string) string {
	u := r.base.JoinPath(append([]string{"api", "v1"}, segments...)...)
	if scheme == "ws" {
		if u.Scheme == "https" {
			u.Scheme = "wss"
		} else {
			u.Scheme = "ws"
		}
	}
	return u.String()
}

func logLevel(s string) execution.LogLevel {
	switch execution.LogLevel(s) {
	case execution.LogDebug, execution.LogWarn, execution.LogError:
		return execution.LogLevel(s)
	}
	return execution.LogInfo
}
