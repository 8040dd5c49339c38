package jobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient implements JobStore and UserStore against the external job
// and user API, the same backend the original batch runner
// called directly: GET /api/users/{id}, GET /api/linkedin/status/{id},
// GET /api/jobs/, PATCH /api/jobs/{id}.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client against baseURL (e.g. "http://localhost:8000").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 300 * time.Second},
	}
}

type userPayload struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	PhoneCountryCode string `json:"phone_country_code"`
	LinkedInURL      string `json:"linkedin_url"`
	GitHubURL        string `json:"github_url"`
	PortfolioURL     string `json:"portfolio_url"`
	Country          string `json:"country"`
	City             string `json:"city"`
	BaseCVContent    string `json:"base_cv_content"`
}

// GetUser fetches a user's profile for filling application forms.
func (c *HTTPClient) GetUser(ctx context.Context, id string) (User, error) {
	var p userPayload
	if err := c.getJSON(ctx, fmt.Sprintf("/api/users/%s", id), &p); err != nil {
		return User{}, fmt.Errorf("jobstore: get user %s: %w", id, err)
	}
	return User{
		ID:               id,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Email:            p.Email,
		Phone:            p.Phone,
		PhoneCountryCode: p.PhoneCountryCode,
		LinkedInURL:      p.LinkedInURL,
		GitHubURL:        p.GitHubURL,
		PortfolioURL:     p.PortfolioURL,
		Country:          p.Country,
		City:             p.City,
		BaseCVContent:    p.BaseCVContent,
	}, nil
}

// GetLinkedInStatus reports whether the user has a connected LinkedIn
// session. A failed or non-200 lookup is treated as disconnected, matching
// the original's fail-safe-to-skip behavior.
func (c *HTTPClient) GetLinkedInStatus(ctx context.Context, userID string) (bool, error) {
	var status struct {
		Connected bool `json:"connected"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/api/linkedin/status/%s", userID), &status); err != nil {
		return false, nil
	}
	return status.Connected, nil
}

type jobPayload struct {
	ID        string `json:"id"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
	Company   string `json:"company"`
	Status    string `json:"status"`
}

func (p jobPayload) toJob() Job {
	return Job{ID: p.ID, SourceURL: p.SourceURL, Title: p.Title, Company: p.Company, Status: p.Status}
}

// ListJobs fetches jobs for userID in the given status, capped at pageSize.
func (c *HTTPClient) ListJobs(ctx context.Context, userID, status string, pageSize int) ([]Job, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("status", status)
	q.Set("page_size", fmt.Sprintf("%d", pageSize))

	var page struct {
		Jobs []jobPayload `json:"jobs"`
	}
	if err := c.getJSON(ctx, "/api/jobs/?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("jobstore: list jobs: %w", err)
	}

	jobs := make([]Job, 0, len(page.Jobs))
	for _, p := range page.Jobs {
		jobs = append(jobs, p.toJob())
	}
	return jobs, nil
}

// GetJob fetches a single job by ID.
func (c *HTTPClient) GetJob(ctx context.Context, id string) (Job, error) {
	var p jobPayload
	if err := c.getJSON(ctx, fmt.Sprintf("/api/jobs/%s", id), &p); err != nil {
		return Job{}, fmt.Errorf("jobstore: get job %s: %w", id, err)
	}
	return p.toJob(), nil
}

// UpdateJobStatus patches a job's status and, for blocked jobs, its
// blocker fields.
func (c *HTTPClient) UpdateJobStatus(ctx context.Context, id, status, blockerKind, blockerDetails string) error {
	body := map[string]string{"status": status}
	if blockerKind != "" {
		body["blocker_type"] = blockerKind
	}
	if blockerDetails != "" {
		body["blocker_details"] = blockerDetails
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("jobstore: marshal status update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+fmt.Sprintf("/api/jobs/%s", id), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("jobstore: build status update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jobstore: send status update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("jobstore: status update: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ JobStore = (*HTTPClient)(nil)
var _ UserStore = (*HTTPClient)(nil)
