// Package jobmanager is the HTTP client of the job manager service that runs the planned tasks.
package jobmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/muesli/reflow/truncate"
	"github.com/rs/zerolog"

	"github.com/pdok/tasker/metrics"
	"github.com/pdok/tasker/submit"
)

const (
	statusPending = "Pending"
	statusFailed  = "Failed"

	maxErrorBodyLen = 512
)

type Config struct {
	URL          string
	Timeout      time.Duration
	ProducerName string
}

// StatusError is a response of the job manager with a non 2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client implements submit.JobClient.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	producerName string
	logger       zerolog.Logger
}

var _ submit.JobClient = (*Client)(nil)

func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	return NewWithHTTPClient(cfg, newOutbound(cfg.Timeout), logger)
}

// NewWithHTTPClient is New with a caller supplied http.Client.
func NewWithHTTPClient(cfg Config, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("no job manager url")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid job manager url: %w", err)
	}
	return &Client{baseURL: u, http: httpClient, producerName: cfg.ProducerName, logger: logger}, nil
}

func newOutbound(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

type createJobRequest struct {
	submit.Job
	Status string        `json:"status"`
	Tasks  []submit.Task `json:"tasks"`
}

type createJobResponse struct {
	ID string `json:"id"`
}

type updateJobRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// CreateJob creates a pending job with its first tasks.
func (c *Client) CreateJob(ctx context.Context, job submit.Job, tasks []submit.Task) (string, error) {
	if job.ProducerName == "" {
		job.ProducerName = c.producerName
	}
	var created createJobResponse
	err := c.do(ctx, submit.OpCreate, http.MethodPost, c.endpoint("jobs"),
		createJobRequest{Job: job, Status: statusPending, Tasks: tasks}, &created)
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("job manager returned no job id")
	}
	return created.ID, nil
}

func (c *Client) AppendTasks(ctx context.Context, jobID string, tasks []submit.Task) error {
	return c.do(ctx, submit.OpAppend, http.MethodPost, c.endpoint("jobs", jobID, "tasks"), tasks, nil)
}

func (c *Client) MarkJobFailed(ctx context.Context, jobID string, reason string) error {
	return c.do(ctx, "fail", http.MethodPut, c.endpoint("jobs", jobID),
		updateJobRequest{Status: statusFailed, Reason: reason}, nil)
}

func (c *Client) endpoint(elem ...string) string {
	return c.baseURL.JoinPath(elem...).String()
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("could not encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveJobManagerRequest(op, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("op", op).Str("url", endpoint).Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).Msg("job manager request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxErrorBodyLen))
		return &StatusError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate.StringWithTail(string(bytes.TrimSpace(b)), maxErrorBodyLen, "..."),
		}
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("could not decode %s response: %w", op, err)
	}
	return nil
}
