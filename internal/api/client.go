// Package api talks to the board sync server that collects board exports.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/planeboard/engine/internal/storage"
)

const (
	healthPath = "/healthcheck"
	importPath = "/api/v1/boards/import"
)

// ErrUnauthorized is returned when the server rejects the API key.
var ErrUnauthorized = errors.New("api key rejected")

// Client is a sync server client. The zero value is not usable; see New.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Imported is the server's answer to an upload.
type Imported struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck returns nil when the server answers 200 on its health endpoint.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload streams the export at path with its metadata as a multipart form.
func (c *Client) Upload(ctx context.Context, path string, meta storage.ExportMetadata) (Imported, error) {
	f, err := os.Open(path)
	if err != nil {
		return Imported{}, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(form, f, filepath.Base(path), meta))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+importPath, pr)
	if err != nil {
		pr.Close()
		return Imported{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Imported{}, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Imported{}, ErrUnauthorized
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Imported{}, fmt.Errorf("upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out Imported
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return Imported{}, fmt.Errorf("decoding upload response: %w", err)
	}
	return out, nil
}

func writeForm(form *multipart.Writer, src io.Reader, name string, meta storage.ExportMetadata) error {
	fields := [][2]string{
		{"boardId", meta.BoardID},
		{"boardName", meta.BoardName},
		{"objectCount", strconv.Itoa(meta.ObjectCount)},
		{"revisions", strconv.Itoa(meta.Revisions)},
	}
	for _, kv := range fields {
		if err := form.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to copy export: %w", err)
	}
	return form.Close()
}
