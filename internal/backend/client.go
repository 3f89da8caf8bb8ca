// Package backend is the REST client of the diagnosis backend. Client
// implements diagnosis.Backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mrsinham/selfdiag/internal/diagnosis"
	"github.com/mrsinham/selfdiag/internal/logger"
	"github.com/mrsinham/selfdiag/internal/metrics"
)

var _ diagnosis.Backend = (*Client)(nil)

// Client talks to the diagnosis backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit paces requests to rps per second. Zero disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: NormalizeBaseURL(baseURL),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		log: logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeBaseURL adds a scheme when missing and drops trailing slashes.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	return strings.TrimRight(u, "/")
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// CreatePatient creates a patient and returns its id.
func (c *Client) CreatePatient(ctx context.Context, p diagnosis.PatientInfo) (int64, error) {
	var created PatientPayload
	if err := c.postJSON(ctx, "create_patient", PathPatients, NewPatientPayload(p), &created); err != nil {
		return 0, fmt.Errorf("create patient: %w", err)
	}
	if created.ID == 0 {
		return 0, errors.New("create patient: response has no id")
	}
	return created.ID, nil
}

// CreateVisit creates a visit and returns its id.
func (c *Client) CreateVisit(ctx context.Context, req diagnosis.VisitRequest) (int64, error) {
	var created VisitPayload
	if err := c.postJSON(ctx, "create_visit", PathVisits, NewVisitPayload(req), &created); err != nil {
		return 0, fmt.Errorf("create visit: %w", err)
	}
	if created.ID == 0 {
		return 0, errors.New("create visit: response has no id")
	}
	return created.ID, nil
}

// UploadTongueImage uploads img for visitID and returns the AI analysis the
// backend ran on it, or nil when the response carries none.
func (c *Client) UploadTongueImage(ctx context.Context, visitID int64, img diagnosis.PendingImage, description string) (map[string]any, error) {
	body, contentType, err := encodeUpload(img, description)
	if err != nil {
		return nil, fmt.Errorf("upload tongue image: %w", err)
	}

	var resp UploadResponse
	path := PathUploadTongueImage + strconv.FormatInt(visitID, 10)
	if err := c.do(ctx, "upload_image", http.MethodPost, path, contentType, body, &resp); err != nil {
		return nil, fmt.Errorf("upload tongue image: %w", err)
	}
	return resp.AIAnalysisResult, nil
}

// CompleteSelfDiagnosis asks the backend to finish the diagnosis of visitID.
func (c *Client) CompleteSelfDiagnosis(ctx context.Context, visitID int64) (map[string]any, error) {
	var resp CompleteResponse
	path := PathCompleteDiagnosis + strconv.FormatInt(visitID, 10)
	if err := c.do(ctx, "complete_self_diagnosis", http.MethodPost, path, "", nil, &resp); err != nil {
		return nil, fmt.Errorf("complete self diagnosis: %w", err)
	}
	return resp.Result, nil
}

// AnalysisResult fetches the stored analysis of visitID.
func (c *Client) AnalysisResult(ctx context.Context, visitID int64) (AnalysisResult, error) {
	var resp AnalysisResult
	path := PathAnalysisResult + strconv.FormatInt(visitID, 10)
	if err := c.do(ctx, "analysis_result", http.MethodGet, path, "", nil, &resp); err != nil {
		return AnalysisResult{}, fmt.Errorf("analysis result: %w", err)
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, endpoint, http.MethodPost, path, "application/json", bytes.NewReader(data), out)
}

// do sends one request and decodes a 2xx JSON body into out. Non-2xx
// responses become *APIError.
func (c *Client) do(ctx context.Context, endpoint, method, path, contentType string, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordBackendRequest(endpoint, "error", time.Since(start))
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	c.metrics.RecordBackendRequest(endpoint, strconv.Itoa(resp.StatusCode), elapsed)
	c.log.BackendRequest(method, path, resp.StatusCode, float64(elapsed.Microseconds())/1000)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// encodeUpload builds the multipart body of an image upload.
func encodeUpload(img diagnosis.PendingImage, description string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := img.Filename
	if filename == "" {
		filename = "tongue.png"
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	imageType := img.Type
	if imageType == "" {
		imageType = diagnosis.ImageTypeTongue
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	if err := w.WriteField("imageType", imageType); err != nil {
		return nil, "", fmt.Errorf("write imageType: %w", err)
	}
	if err := w.WriteField("description", description); err != nil {
		return nil, "", fmt.Errorf("write description: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
