package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из domain, CLI не импортирует внутренние пакеты) ---

// ReporterStatsResponse — счётчики прогона.
type ReporterStatsResponse struct {
	Suites   int    `json:"suites"`
	Tests    int    `json:"tests"`
	Passes   int    `json:"passes"`
	Pending  int    `json:"pending"`
	Failures int    `json:"failures"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Duration int64  `json:"duration"`
}

// ScreenshotResponse — опубликованный скриншот.
type ScreenshotResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// JobResponse — job из операционного API.
type JobResponse struct {
	ID            string                 `json:"id"`
	CaseID        string                 `json:"case_id"`
	CompilationID string                 `json:"app_compilation_id"`
	Status        string                 `json:"status"`
	ReporterStats *ReporterStatsResponse `json:"reporterStats,omitempty"`
	Error         *string                `json:"error"`
	Screenshots   []ScreenshotResponse   `json:"screenshots"`
	Case          struct {
		Name     string `json:"name"`
		FileName string `json:"file_name"`
	} `json:"case"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент операционного API воркера.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// Ready возвращает nil, если воркер готов (хранилище подключено).
func (c *Client) Ready() error {
	resp, err := c.do(http.MethodGet, "/readyz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	resp, err := c.do(http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
