package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rag/upload", r.URL.Path)
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4", string(data))
		_ = json.NewEncoder(w).Encode(uploadResponse{Message: "File report.pdf processed successfully", DocumentCount: 4})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	resp, err := newClient(srv.URL, time.Second).Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.DocumentCount)
}

func TestClient_ChatReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"Failed to generate an answer"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, time.Second).Chat(context.Background(), chatRequest{})
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "Failed to generate an answer", apiErr.Message)
}

func TestClient_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event:token\ndata:Two \n\nevent:token\ndata:years.\n\n")
		_, _ = io.WriteString(w, "event:sources\ndata:[{\"content\":\"c\",\"filename\":\"manual.pdf\",\"score\":0.91}]\n\n")
	}))
	defer srv.Close()

	var out bytes.Buffer
	sources, err := newClient(srv.URL, time.Second).ChatStream(context.Background(), chatRequest{}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Two years.", out.String())
	require.Len(t, sources, 1)
	assert.Equal(t, "manual.pdf", sources[0].Filename)
}

func TestBuildChatRequest(t *testing.T) {
	history := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(history, []byte(`[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`), 0o600))

	cmd := &cobra.Command{}
	cmd.Flags().Float32Var(&temperature, "temperature", defaultTemperature, "")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", defaultMaxTokens, "")
	require.NoError(t, cmd.Flags().Set("temperature", "0.1"))

	historyFile = history
	defer func() { historyFile = "" }()

	req, err := buildChatRequest(cmd, "what now?")
	require.NoError(t, err)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, chatMessage{Role: roleUser, Content: "what now?"}, req.Messages[2])
	require.NotNil(t, req.Temperature)
	assert.Equal(t, float32(0.1), *req.Temperature)
	assert.Nil(t, req.MaxTokens)
}
