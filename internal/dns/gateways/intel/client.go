package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haukened/blockwatch/internal/dns/common/utils"
)

const (
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"
	DefaultTimeout = 10 * time.Second
	// DefaultRate is requests per second.
	DefaultRate = 4

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 4096
)

const (
	errAPIKeyRequired    = "cloudflare api key is required"
	errAccountIDRequired = "cloudflare account id is required"
	errBuildRequest      = "build request: %w"
	errRequest           = "domain intel request for %s: %w"
	errStatus            = "domain intel for %s: status %d: %s"
	errDecode            = "decode domain intel for %s: %w"
	errUnsuccessful      = "domain intel for %s unsuccessful: %s"
)

// Options configures the domain intelligence client.
type Options struct {
	// required parameters
	APIKey    string
	AccountID string
	// optional parameters
	BaseURL string
	Timeout time.Duration
	Rate    float64
	// injectable for tests
	HTTPClient *http.Client
}

// Client looks up content categories for a domain.
type Client struct {
	baseURL   string
	apiKey    string
	accountID string
	http      *http.Client
	limiter   *rate.Limiter
}

type category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type intelResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Domain            string     `json:"domain"`
		ContentCategories []category `json:"content_categories"`
	} `json:"result"`
}

// NewClient validates opts and applies defaults.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf(errAPIKeyRequired)
	}
	if opts.AccountID == "" {
		return nil, fmt.Errorf(errAccountIDRequired)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		accountID: opts.AccountID,
		http:      opts.HTTPClient,
		limiter:   rate.NewLimiter(rate.Limit(opts.Rate), 1),
	}, nil
}

// Categories returns the content category names the API reports for name.
// A successful lookup with no categories returns an empty slice.
func (c *Client) Categories(ctx context.Context, name string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	d := utils.ASCIIName(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(d), nil)
	if err != nil {
		return nil, fmt.Errorf(errBuildRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errRequest, d, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(errRequest, d, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(errStatus, d, resp.StatusCode, truncate(body))
	}

	var out intelResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf(errDecode, d, err)
	}
	if !out.Success {
		return nil, fmt.Errorf(errUnsuccessful, d, truncate(body))
	}

	names := make([]string, 0, len(out.Result.ContentCategories))
	for _, cat := range out.Result.ContentCategories {
		if cat.Name != "" {
			names = append(names, cat.Name)
		}
	}
	return names, nil
}

func (c *Client) endpoint(d string) string {
	q := url.Values{"domain": []string{d}}
	return fmt.Sprintf("%s/accounts/%s/intel/domain?%s", c.baseURL, url.PathEscape(c.accountID), q.Encode())
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
