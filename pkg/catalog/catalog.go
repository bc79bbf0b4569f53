// Package catalog fetches the styles and models a backend offers.
package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

type Style struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Icon        string `json:"icon" yaml:"icon"`
	Description string `json:"description" yaml:"description"`
}

type Models struct {
	Models          []string            `json:"models" yaml:"models"`
	Default         string              `json:"default" yaml:"default"`
	ModelCategories map[string][]string `json:"model_categories,omitempty" yaml:"model_categories,omitempty"`
}

// The "default" style is what an empty selection maps to; it is never offered
// as a choice.
const hiddenStyle = "default"

func FallbackStyles() []Style {
	return []Style{
		{ID: "office", Label: "Professional", Icon: "💼", Description: "Formal & polished"},
		{ID: "whatsapp", Label: "Casual", Icon: "💬", Description: "Friendly & relaxed"},
		{ID: "slack", Label: "Business", Icon: "🤝", Description: "Clear & direct"},
		{ID: "fun", Label: "Creative", Icon: "✨", Description: "Bold & playful"},
	}
}

func FallbackModels() Models {
	return Models{
		Models:  []string{"gpt-4.1", "claude-sonnet-4-20250514"},
		Default: "gpt-4.1",
	}
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return errors.Wrap(err, "build url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

// Styles returns the selectable styles. On failure it returns the fallback
// list together with the error.
func (c *Client) Styles(ctx context.Context) ([]Style, error) {
	var body struct {
		Styles []Style `json:"styles"`
	}
	if err := c.getJSON(ctx, "/api/styles", &body); err != nil {
		return FallbackStyles(), err
	}
	out := make([]Style, 0, len(body.Styles))
	for _, s := range body.Styles {
		if s.ID == "" || s.ID == hiddenStyle {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return FallbackStyles(), errors.New("backend offered no styles")
	}
	return out, nil
}

// Models returns the available models. On failure it returns the fallback
// list together with the error.
func (c *Client) Models(ctx context.Context) (Models, error) {
	var m Models
	if err := c.getJSON(ctx, "/api/models", &m); err != nil {
		return FallbackModels(), err
	}
	if len(m.Models) == 0 {
		return FallbackModels(), errors.New("backend offered no models")
	}
	if m.Default == "" {
		m.Default = m.Models[0]
	}
	return m, nil
}
