// Package client talks to a relay server on behalf of the command line.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-success response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// UploadOptions are the optional form fields of an upload.
type UploadOptions struct {
	Description string
	Password    string
	// Expiration in hours; zero leaves the server default.
	Expiration int
}

// UploadResult mirrors the server's upload response.
type UploadResult struct {
	StorageKey  string    `json:"storage_key"`
	DisplayName string    `json:"display_name"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Size        int64     `json:"size"`
}

// Record is one entry of the server's file listing.
type Record struct {
	StorageKey    string  `json:"storage_key"`
	Name          string  `json:"name"`
	FormattedSize string  `json:"formatted_size"`
	UploadTime    string  `json:"upload_time"`
	Description   string  `json:"description"`
	HasPassword   bool    `json:"has_password"`
	RemainingTime *string `json:"remaining_time"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient means
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Upload streams src to the server as a multipart form.
func (c *Client) Upload(ctx context.Context, src *Source, opts UploadOptions) (*UploadResult, error) {
	body, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src.Name, err)
	}
	defer body.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, src.Name, body, opts))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// List fetches the live file listing.
func (c *Client) List(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/files", nil)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := c.do(req, http.StatusOK, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func writeForm(mw *multipart.Writer, name string, body io.Reader, opts UploadOptions) error {
	fields := map[string]string{
		"description": opts.Description,
		"password":    opts.Password,
	}
	if opts.Expiration > 0 {
		fields["expiration"] = fmt.Sprint(opts.Expiration)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	return mw.Close()
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) != nil || body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
