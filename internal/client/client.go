package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
	"github.com/ncleton-petitmaker/post-veille-ia/internal/service"
)

// Client talks to the publish server.
type Client struct {
	baseURL    string
	totpSecret string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration, totpSecret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		totpSecret: totpSecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type listResponse struct {
	Posts     []models.Post `json:"posts"`
	Timestamp string        `json:"timestamp"`
}

type updateResponse struct {
	Success bool         `json:"success"`
	Post    *models.Post `json:"post"`
}

func (c *Client) ListPosts(ctx context.Context) ([]models.Post, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/api/scheduled-posts", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Posts == nil {
		resp.Posts = []models.Post{}
	}
	return resp.Posts, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) (*models.Post, error) {
	var resp updateResponse
	if err := c.do(ctx, http.MethodPatch, "/api/scheduled-posts/"+url.PathEscape(id), update, &resp); err != nil {
		return nil, err
	}
	return resp.Post, nil
}

// ImageURL is the image proxy address for a post's image reference.
func (c *Client) ImageURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "data:") {
		return path
	}
	return c.baseURL + "/api/image?path=" + url.QueryEscape(path)
}

// FetchImage downloads an image through the proxy and returns its bytes and content type.
func (c *Client) FetchImage(ctx context.Context, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ImageURL(path), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %v: %w", err, models.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", fmt.Errorf("image %s: %w", path, models.ErrNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("fetch image: status %d: %w", resp.StatusCode, models.ErrNetwork)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %v: %w", err, models.ErrNetwork)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.totpSecret != "" && method != http.MethodGet {
		code, err := service.GenerateCode(c.totpSecret, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		req.Header.Set(service.CodeHeader, code)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, models.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, models.ErrNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: status %d %s: %w", method, path, resp.StatusCode, apiErr.Error, models.ErrNetwork)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %v: %w", err, models.ErrNetwork)
	}
	return nil
}
