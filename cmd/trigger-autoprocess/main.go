// trigger-autoprocess command executes auto-process definitions through the
// autoprocessd API, either the ones given as arguments or all of them.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/timgluz/autoprocess/autoprocess"
	"github.com/timgluz/autoprocess/response"
)

const DefaultPageSize = 50

type Config struct {
	APIEndpoint string `envconfig:"API_ENDPOINT" required:"true"`
	APIKey      string `envconfig:"API_KEY" required:"true"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

func main() {
	config, err := loadConfigFromEnv()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	client := &apiClient{
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		config:     config,
	}

	ctx := context.Background()
	ids := os.Args[1:]
	if len(ids) == 0 {
		ids, err = client.listDefinitionIDs(ctx)
		if err != nil {
			fmt.Printf("Error listing definitions: %v\n", err)
			os.Exit(1)
		}
	}

	if len(ids) == 0 {
		fmt.Println("No definitions found to execute.")
		return
	}

	fmt.Printf("Executing %d definitions...\n", len(ids))
	var failed int
	for _, id := range ids {
		result, err := client.execute(ctx, id)
		if err != nil {
			fmt.Printf("Error executing %s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("Executed %s: fetched=%d appended=%d\n", id, result.Fetched, result.Appended)
	}

	if failed > 0 {
		fmt.Printf("%d of %d executions failed.\n", failed, len(ids))
		os.Exit(1)
	}
	fmt.Println("All definitions executed successfully.")
}

func loadConfigFromEnv() (*Config, error) {
	var config Config
	if err := envconfig.Process("AUTOPROCESS", &config); err != nil {
		return nil, err
	}
	if config.APIEndpoint == "" || config.APIKey == "" {
		return nil, fmt.Errorf("AUTOPROCESS_API_ENDPOINT and AUTOPROCESS_API_KEY must be set")
	}
	return &config, nil
}

type apiClient struct {
	httpClient *http.Client
	config     *Config
}

func (c *apiClient) listDefinitionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for offset := 0; ; offset += DefaultPageSize {
		query := url.Values{}
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(DefaultPageSize))

		var page response.CollectionResponse[autoprocess.Definition]
		if err := c.do(ctx, http.MethodGet, "/autoprocesses", query, &page); err != nil {
			return nil, err
		}
		for _, d := range page.Items {
			ids = append(ids, d.ID)
		}

		if len(page.Items) < DefaultPageSize {
			return ids, nil
		}
	}
}

func (c *apiClient) execute(ctx context.Context, id string) (*autoprocess.Result, error) {
	var result struct {
		Data autoprocess.Result `json:"data"`
	}
	path := "/autoprocesses/" + url.PathEscape(id) + "/execute"
	if err := c.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	endpoint, err := url.JoinPath(c.config.APIEndpoint, path)
	if err != nil {
		return fmt.Errorf("failed to construct URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func(resp *http.Response) {
		if err := resp.Body.Close(); err != nil {
			fmt.Printf("failed to close response body: %v\n", err)
		}
	}(resp)

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - %s", resp.StatusCode, string(content))
	}

	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
