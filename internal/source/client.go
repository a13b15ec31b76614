// internal/source/client.go
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jobmatch-service/internal/common/config"
	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/common/retry"
)

// RawPosting is one posting as returned by the listing source, before
// normalization.
type RawPosting struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Company     struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string   `json:"display_name"`
		Area        []string `json:"area"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
	} `json:"location"`
	Category struct {
		Label string `json:"label"`
		Tag   string `json:"tag"`
	} `json:"category"`
	SalaryMin    *float64 `json:"salary_min"`
	SalaryMax    *float64 `json:"salary_max"`
	ContractType string   `json:"contract_type"`
	ContractTime string   `json:"contract_time"`
	RedirectURL  string   `json:"redirect_url"`
	Created      string   `json:"created"`
}

// Page is one page of search results. Count is the source-reported total
// across all pages, used by callers to decide when to stop paginating.
type Page struct {
	Results []RawPosting `json:"results"`
	Count   int          `json:"count"`
}

// FetchOutcome is what FetchAll gathered, including whether pagination was
// cut short by a page failure.
type FetchOutcome struct {
	Postings []RawPosting
	Pages    int
	Partial  bool
	Err      error
}

// Client fetches raw postings from the external listing source.
type Client struct {
	baseURL        string
	appID          string
	appKey         string
	country        string
	resultsPerPage int
	httpClient     *http.Client
	retryPolicy    retry.Policy
	log            logger.Logger
}

func NewClient(cfg *config.SourceConfig, log logger.Logger) *Client {
	return &Client{
		baseURL:        cfg.BaseURL,
		appID:          cfg.AppID,
		appKey:         cfg.AppKey,
		country:        cfg.Country,
		resultsPerPage: cfg.ResultsPerPage,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		},
		retryPolicy: retry.Policy{
			MaxAttempts: cfg.MaxRetries + 1,
			BaseDelay:   2 * time.Second,
			MaxDelay:    15 * time.Second,
			Retryable:   apperrors.IsRetryable,
		},
		log: log,
	}
}

// SearchPage fetches one page of postings. Pages are 1-indexed and carried
// in the URL path. An empty country falls back to the configured default.
func (c *Client) SearchPage(ctx context.Context, page int, query, country string) (*Page, error) {
	if country == "" {
		country = c.country
	}
	endpoint := fmt.Sprintf("%s/jobs/%s/search/%d", c.baseURL, country, page)

	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("app_key", c.appKey)
	params.Set("results_per_page", strconv.Itoa(c.resultsPerPage))
	if query != "" {
		params.Set("what", query)
	}

	var result Page
	err := c.retryPolicy.Do(ctx, "source_search_page", func() error {
		return c.fetchPage(ctx, endpoint+"?"+params.Encode(), page, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) fetchPage(ctx context.Context, fullURL string, page int, out *Page) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return apperrors.NewSourceFetchFailedError(page, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "jobmatch-service/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.NewSourcePageTimeoutError(page)
		}
		return apperrors.NewSourcePageTimeoutError(page)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewSourceFetchFailedError(page, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error("Source API returned non-200 status", map[string]interface{}{
			"page":   page,
			"status": resp.StatusCode,
			"body":   truncate(string(body), 500),
		})
		return apperrors.NewSourceFetchFailedError(page, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewSourceFetchFailedError(page, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// FetchAll pulls pages until one comes back empty, the cumulative fetched
// count reaches the source-reported total, or maxPages is hit. A page
// failure stops pagination but keeps everything gathered so far; Partial
// and Err report the cut-off to the caller.
func (c *Client) FetchAll(ctx context.Context, maxPages int, query, country string) *FetchOutcome {
	outcome := &FetchOutcome{}

	c.log.Info("Starting source fetch", map[string]interface{}{
		"max_pages":        maxPages,
		"results_per_page": c.resultsPerPage,
		"query":            query,
	})

	for page := 1; page <= maxPages; page++ {
		result, err := c.SearchPage(ctx, page, query, country)
		if err != nil {
			c.log.WithError(err).Error("Failed to fetch page", map[string]interface{}{
				"page":    page,
				"fetched": len(outcome.Postings),
			})
			outcome.Partial = len(outcome.Postings) > 0
			outcome.Err = err
			return outcome
		}

		if len(result.Results) == 0 {
			c.log.Info("No more postings", map[string]interface{}{"page": page})
			break
		}

		outcome.Postings = append(outcome.Postings, result.Results...)
		outcome.Pages = page

		c.log.Info("Fetched page", map[string]interface{}{
			"page":  page,
			"got":   len(result.Results),
			"total": len(outcome.Postings),
			"count": result.Count,
		})

		if page*c.resultsPerPage >= result.Count {
			break
		}
	}

	return outcome
}

// Categories returns the labels the source groups postings under.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	endpoint := fmt.Sprintf("%s/jobs/%s/categories", c.baseURL, c.country)

	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("app_key", c.appKey)

	var result struct {
		Results []struct {
			Label string `json:"label"`
			Tag   string `json:"tag"`
		} `json:"results"`
	}

	err := c.retryPolicy.Do(ctx, "source_categories", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return apperrors.NewSourceFetchFailedError(0, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewSourcePageTimeoutError(0)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return apperrors.NewSourceFetchFailedError(0, fmt.Errorf("status %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		labels = append(labels, r.Label)
	}
	return labels, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
