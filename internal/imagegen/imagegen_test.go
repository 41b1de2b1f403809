package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStyleDirective(t *testing.T) {
	tests := map[string]string{
		"default":   "-style Realism",
		"ghibli":    "-style Ghibli Art",
		"cyberpunk": "-style Cyberpunk",
		"anime":     "-style Anime",
		"portrait":  "-style Portrait",
		"3d":        "-style 3D",
		"vaporwave": "",
		"":          "",
	}
	for style, want := range tests {
		assert.Equal(t, want, StyleDirective(style), "style %q", style)
	}

	for _, s := range Styles() {
		assert.NotEmpty(t, StyleDirective(s), "listed style %q has no directive", s)
	}
}

func TestDimensions(t *testing.T) {
	tests := map[string]string{
		"1:1":  "1024x1024",
		"3:2":  "1080x720",
		"2:3":  "720x1080",
		"16:9": "1024x1024",
		"":     "1024x1024",
	}
	for size, want := range tests {
		assert.Equal(t, want, Dimensions(size), "size %q", size)
	}
	assert.Len(t, Sizes(), 3)
}

func TestNewDeviceID(t *testing.T) {
	hex32 := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id := NewDeviceID()
		assert.Regexp(t, hex32, id)
		assert.False(t, seen[id], "duplicate device id")
		seen[id] = true
	}
}

func TestTruncatePrompt(t *testing.T) {
	assert.Equal(t, "short", TruncatePrompt("short", 100))
	assert.Equal(t, strings.Repeat("a", 100), TruncatePrompt(strings.Repeat("a", 150), 100))
	assert.Equal(t, "আমি", TruncatePrompt("আমিতুমি", 3))
}

func TestGenerate_Success(t *testing.T) {
	var got generateRequest
	var origin, referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin = r.Header.Get("Origin")
		referer = r.Header.Get("Referer")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"data":{"images":[{"url":"https://img.example/u.png"},{"url":"https://img.example/second.png"}]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	res, err := c.Generate(context.Background(), "a red fox", "anime", "3:2")

	require.NoError(t, err)
	assert.Equal(t, "https://img.example/u.png", res.URL)
	assert.Equal(t, "anime", res.Style)
	assert.Equal(t, "3:2", res.Size)

	assert.Equal(t, "a red fox -style Anime", got.Prompt)
	assert.Equal(t, "1080x720", got.Size)
	assert.Equal(t, "1", got.N)
	assert.Equal(t, "png", got.OutputFormat)
	assert.Len(t, got.DeviceID, 32)
	assert.Equal(t, "https://deepimg.ai", origin)
	assert.Equal(t, "https://deepimg.ai/", referer)
}

func TestGenerate_Defaults(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"data":{"images":[{"url":"u"}]}}`)
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Generate(context.Background(), "sunset", "", "")

	require.NoError(t, err)
	assert.Equal(t, "sunset -style Realism", got.Prompt)
	assert.Equal(t, "1024x1024", got.Size)
	assert.Equal(t, DefaultStyle, res.Style)
	assert.Equal(t, DefaultSize, res.Size)
}

func TestGenerate_UnknownStyleKeepsTrailingSpace(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"data":{"images":[{"url":"u"}]}}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Generate(context.Background(), "x", "vaporwave", "9:9")

	require.NoError(t, err)
	assert.Equal(t, "x ", got.Prompt)
	assert.Equal(t, "1024x1024", got.Size)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"empty images", http.StatusOK, `{"data":{"images":[]}}`, ErrNoImage},
		{"no data", http.StatusOK, `{"error":"quota"}`, ErrNoImage},
		{"not json", http.StatusOK, `nope`, ErrNoImage},
		{"bad status", http.StatusTooManyRequests, `{}`, ErrRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Generate(context.Background(), "p", "", "")

			var ge *GenerationError
			require.True(t, errors.As(err, &ge), "want *GenerationError, got %v", err)
			assert.Equal(t, "p", ge.Prompt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Generate(context.Background(), "p", "", "")
	assert.ErrorIs(t, err, ErrRequestFailed)
}
