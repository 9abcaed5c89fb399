package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepscan/backend/internal/risk"
)

func TestAnalyzeURL_CurrentContract(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://cdn.example.com/a.png", req["mediaUrl"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"media_type": "image",
			"risk_score": 82,
			"classification": map[string]interface{}{
				"confidence":      0.82,
				"predicted_label": "synthetic",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	result, err := client.AnalyzeURL(context.Background(), "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "/scan/url", gotPath)
	assert.Equal(t, "image", result.MediaType)
	assert.Equal(t, risk.LevelHigh, result.Risk)
}

func TestAnalyzeURL_FallsBackToLegacyOn404(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/scan/url" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"mediaType":   "audio",
			"probability": 0.3,
			"risk":        "Low",
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	result, err := client.AnalyzeURL(context.Background(), "https://example.com/voice.mp3")
	require.NoError(t, err)
	assert.Equal(t, []string{"/scan/url", "/analyze"}, paths)
	assert.Equal(t, "audio", result.MediaType)
	assert.Equal(t, risk.LevelLow, result.Risk)
}

func TestAnalyzeURL_AllContractsMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.AnalyzeURL(context.Background(), "https://example.com/x.png")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAnalyzeURL_ServerErrorBodySurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported media type"})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.AnalyzeURL(context.Background(), "https://example.com/x.bin")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "unsupported media type")
}

func TestAnalyzeURL_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: base})
	_, err := client.AnalyzeURL(context.Background(), "https://example.com/x.png")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAnalyzeURL_UnrecognizedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"verdict": "fine"})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.AnalyzeURL(context.Background(), "https://example.com/x.png")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestAnalyzeFile_MultipartUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scan/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "clip.mp4", header.Filename)

		// Upload endpoint answers with an array.
		json.NewEncoder(w).Encode([]map[string]interface{}{{
			"media_type": "video",
			"risk_score": 50,
			"classification": map[string]interface{}{
				"confidence":      0.5,
				"predicted_label": "synthetic",
			},
		}})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	result, err := client.AnalyzeFile(context.Background(), []byte("fake-bytes"), "clip.mp4", "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "video", result.MediaType)
	assert.Equal(t, risk.LevelMedium, result.Risk)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	assert.NoError(t, client.Health(context.Background()))

	down := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	assert.ErrorIs(t, down.Health(context.Background()), ErrUnavailable)
}
