// internal/relevance/client.go
package relevance

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"jobmatch-service/internal/common/config"
	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/common/metrics"
	"jobmatch-service/internal/common/retry"
	"jobmatch-service/internal/models"
)

// maxQueryBytes bounds the free text sent to the ranking service; it
// rejects oversized ranking expressions.
const maxQueryBytes = 5000

// RankedJob is one hit from the ranking service.
type RankedJob struct {
	Name          string  `json:"name"`
	RequisitionID string  `json:"requisitionId"`
	Title         string  `json:"title"`
	Score         float64 `json:"relevanceScore"`
}

// SearchFilters narrows a ranking query on the remote side.
type SearchFilters struct {
	Locations       []string `json:"locationFilters,omitempty"`
	EmploymentTypes []string `json:"employmentTypes,omitempty"`
	Categories      []string `json:"jobCategories,omitempty"`
}

type searchRequest struct {
	Query      string        `json:"query"`
	Filters    SearchFilters `json:"filters"`
	MaxResults int           `json:"maxResults"`
	OrderBy    string        `json:"orderBy"`
}

type searchResponse struct {
	MatchingJobs []RankedJob `json:"matchingJobs"`
}

type jobPayload struct {
	RequisitionID  string   `json:"requisitionId"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Company        string   `json:"company,omitempty"`
	Addresses      []string `json:"addresses,omitempty"`
	ApplicationURI string   `json:"applicationUri,omitempty"`
	EmploymentType string   `json:"employmentType,omitempty"`
	JobLevel       string   `json:"jobLevel,omitempty"`
	SalaryMin      *float64 `json:"salaryMin,omitempty"`
	SalaryMax      *float64 `json:"salaryMax,omitempty"`
	SalaryCurrency string   `json:"salaryCurrency,omitempty"`
	LanguageCode   string   `json:"languageCode"`
}

type jobResponse struct {
	Name string `json:"name"`
}

// Client talks to the external relevance ranking service. Transient
// failures (timeout, unavailable, internal) are retried; not-found and
// already-exists are surfaced as distinct error kinds so callers can take
// the alternate code path instead of failing.
type Client struct {
	baseURL     string
	apiKey      string
	tenant      string
	httpClient  *http.Client
	retryPolicy retry.Policy
	log         logger.Logger
}

func NewClient(cfg *config.RelevanceConfig, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		tenant:  cfg.Tenant,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		},
		retryPolicy: retry.Policy{
			// MaxRetries counts retries after the first attempt, as in
			// the source client.
			MaxAttempts: cfg.MaxRetries + 1,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
			Retryable:   apperrors.IsRetryable,
		},
		log: log,
	}
}

// RequisitionID derives the globally unique remote key from the listing
// source's natural key. The hash suffix keeps the id stable and bounded
// regardless of the external id's shape.
func RequisitionID(externalID string) string {
	sum := md5.Sum([]byte(externalID))
	return fmt.Sprintf("req-%s-%s", externalID, hex.EncodeToString(sum[:])[:8])
}

// JobName returns the durable remote identifier for a requisition id.
func (c *Client) JobName(requisitionID string) string {
	return fmt.Sprintf("tenants/%s/jobs/%s", c.tenant, requisitionID)
}

// Search submits free text plus structured filters and returns ranked
// hits. An empty result list is a valid outcome, not an error; callers
// must check the error to tell "nothing matched" from "service down".
func (c *Client) Search(ctx context.Context, queryText string, filters SearchFilters, maxResults int) ([]RankedJob, error) {
	body := searchRequest{
		Query:      escapeQuery(truncateBytes(queryText, maxQueryBytes)),
		Filters:    filters,
		MaxResults: maxResults,
		OrderBy:    "relevance desc",
	}

	var resp searchResponse
	err := c.retryPolicy.Do(ctx, "relevance_search", func() error {
		return c.call(ctx, http.MethodPost, "/jobs:search", "search", body, &resp)
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("Relevance search completed", map[string]interface{}{
		"results": len(resp.MatchingJobs),
	})
	return resp.MatchingJobs, nil
}

// CreateJob registers a posting with the ranking service and returns its
// durable remote name. A posting that already exists is not an error; the
// deterministic name is returned instead.
func (c *Client) CreateJob(ctx context.Context, job *models.JobRecord) (string, error) {
	payload := buildJobPayload(job)

	var resp jobResponse
	err := c.retryPolicy.Do(ctx, "relevance_create_job", func() error {
		return c.call(ctx, http.MethodPost, "/jobs", "create_job", payload, &resp)
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeRemoteAlreadyExists) {
			c.log.Warn("Remote job already exists", map[string]interface{}{
				"requisition_id": job.RequisitionID,
			})
			return c.JobName(job.RequisitionID), nil
		}
		return "", err
	}
	if resp.Name == "" {
		return "", apperrors.NewRemoteInternalError("create_job", http.StatusOK)
	}
	return resp.Name, nil
}

// UpdateJob refreshes a previously registered posting. A not-found answer
// means the remote record was evicted; it is recreated instead.
func (c *Client) UpdateJob(ctx context.Context, remoteName string, job *models.JobRecord) (string, error) {
	payload := buildJobPayload(job)

	var resp jobResponse
	err := c.retryPolicy.Do(ctx, "relevance_update_job", func() error {
		return c.call(ctx, http.MethodPut, "/jobs/"+job.RequisitionID, "update_job", payload, &resp)
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeRemoteNotFound) {
			c.log.Warn("Remote job missing on update, recreating", map[string]interface{}{
				"remote_name": remoteName,
			})
			return c.CreateJob(ctx, job)
		}
		return "", err
	}
	if resp.Name == "" {
		resp.Name = remoteName
	}
	return resp.Name, nil
}

// DeleteJob removes a posting from the ranking service. Deleting a record
// that is already gone reports false without an error.
func (c *Client) DeleteJob(ctx context.Context, requisitionID string) (bool, error) {
	err := c.retryPolicy.Do(ctx, "relevance_delete_job", func() error {
		return c.call(ctx, http.MethodDelete, "/jobs/"+requisitionID, "delete_job", nil, nil)
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeRemoteNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) call(ctx context.Context, method, path, operation string, body, out interface{}) error {
	url := fmt.Sprintf("%s/v1/tenants/%s%s", c.baseURL, c.tenant, path)

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewRemoteInternalError(operation, 0)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return apperrors.NewRemoteInternalError(operation, 0)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RemoteFailuresTotal.WithLabelValues(operation, string(apperrors.ErrCodeRemoteTimeout)).Inc()
		return apperrors.NewRemoteTimeoutError(operation)
	}
	defer resp.Body.Close()

	if err := c.classifyStatus(operation, resp); err != nil {
		metrics.RemoteFailuresTotal.WithLabelValues(operation, string(apperrors.CodeOf(err))).Inc()
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewRemoteInternalError(operation, resp.StatusCode)
	}
	return nil
}

func (c *Client) classifyStatus(operation string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return apperrors.NewRemoteTimeoutError(operation)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return apperrors.NewRemoteUnavailableError(operation, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewRemoteNotFoundError(resp.Request.URL.Path)
	case resp.StatusCode == http.StatusConflict:
		return apperrors.NewRemoteAlreadyExistsError(resp.Request.URL.Path)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewRemotePermissionDeniedError(operation)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		c.log.Error("Relevance service returned unexpected status", map[string]interface{}{
			"operation": operation,
			"status":    resp.StatusCode,
			"body":      string(body),
		})
		return apperrors.NewRemoteInternalError(operation, resp.StatusCode)
	}
}

func buildJobPayload(job *models.JobRecord) jobPayload {
	payload := jobPayload{
		RequisitionID:  job.RequisitionID,
		Title:          job.Title,
		Description:    job.Description,
		Company:        job.CompanyDisplayName,
		ApplicationURI: job.RedirectURL,
		EmploymentType: string(job.EmploymentType),
		JobLevel:       string(job.JobLevel),
		SalaryMin:      job.SalaryMin,
		SalaryMax:      job.SalaryMax,
		SalaryCurrency: job.SalaryCurrency,
		LanguageCode:   "en-US",
	}
	if job.Location != "" {
		payload.Addresses = []string{job.Location}
	}
	return payload
}

// truncateBytes cuts at a byte boundary without splitting a UTF-8 rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func escapeQuery(text string) string {
	text = strings.ReplaceAll(text, `"`, `\"`)
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return text
}
