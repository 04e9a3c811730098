package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// apiClient talks to the DocRAG HTTP API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) Upload(ctx context.Context, path string) (uploadResponse, error) {
	var out uploadResponse

	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return out, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, err
	}
	if err := w.Close(); err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/rag/upload", body)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return out, c.do(req, &out)
}

func (c *apiClient) Chat(ctx context.Context, chat chatRequest) (chatResponse, error) {
	var out chatResponse
	req, err := c.jsonRequest(ctx, "/api/v1/rag/chat", chat)
	if err != nil {
		return out, err
	}
	return out, c.do(req, &out)
}

// ChatStream prints tokens to w as they arrive and returns the sources sent at the end.
func (c *apiClient) ChatStream(ctx context.Context, chat chatRequest, w io.Writer) ([]source, error) {
	req, err := c.jsonRequest(ctx, "/api/v1/rag/chat/stream", chat)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var (
		event   string
		sources []source
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			switch event {
			case "token":
				fmt.Fprint(w, data)
			case "sources":
				if err := json.Unmarshal([]byte(data), &sources); err != nil {
					return nil, fmt.Errorf("malformed sources event: %w", err)
				}
			case "error":
				var body struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal([]byte(data), &body)
				return nil, &apiError{Status: http.StatusOK, Message: body.Error}
			}
		}
	}
	return sources, scanner.Err()
}

func (c *apiClient) Health(ctx context.Context) (healthResponse, error) {
	var out healthResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return out, err
	}
	return out, c.do(req, &out)
}

func (c *apiClient) jsonRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			msg = body.Error
		} else if body.Detail != "" {
			msg = body.Detail
		}
	}
	return &apiError{Status: resp.StatusCode, Message: msg}
}
