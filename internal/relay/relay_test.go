package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/httpclient"
)

// A 1x1 PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func testClient() *resty.Client {
	opts := httpclient.DefaultOptions("relay-test")
	opts.RetryMax = 0
	opts.Timeout = 5 * time.Second
	return httpclient.New(opts)
}

func TestTranscribe(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var got map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/transcribe/url", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"text":"  hello world ","language":"en","duration":1.5}`))
		}))
		defer srv.Close()

		text, err := NewTranscriber(testClient(), srv.URL+"/", "en").Transcribe(context.Background(), "https://files/voice.ogg")
		require.NoError(t, err)
		assert.Equal(t, "hello world", text)
		assert.Equal(t, "https://files/voice.ogg", got["url"])
		assert.Equal(t, "en", got["language"])
	})

	t.Run("language omitted when empty", func(t *testing.T) {
		var got map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"text":"hi"}`))
		}))
		defer srv.Close()

		_, err := NewTranscriber(testClient(), srv.URL, "").Transcribe(context.Background(), "u")
		require.NoError(t, err)
		_, present := got["language"]
		assert.False(t, present)
	})

	t.Run("non-200 is a transcription error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := NewTranscriber(testClient(), srv.URL, "").Transcribe(context.Background(), "u")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindTranscription))
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("empty text is a transcription error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"text":"   "}`))
		}))
		defer srv.Close()

		_, err := NewTranscriber(testClient(), srv.URL, "").Transcribe(context.Background(), "u")
		assert.True(t, errors.Is(err, errors.KindTranscription))
	})

	t.Run("unreachable service", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewTranscriber(testClient(), url, "").Transcribe(context.Background(), "u")
		assert.True(t, errors.Is(err, errors.KindTranscription))
	})
}

func TestFetchImageAndCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes)
	}))
	defer srv.Close()

	mediaDir := t.TempDir()
	d := NewDownloader(testClient(), mediaDir)

	path, err := d.FetchImage(context.Background(), srv.URL+"/photo")
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(path))
	assert.True(t, strings.HasPrefix(path, mediaDir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	d.Cleanup(path)
	_, err = os.Stat(filepath.Dir(path))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(mediaDir)
	assert.NoError(t, err, "media root must survive cleanup")
}

func TestFetchImage_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	mediaDir := t.TempDir()
	_, err := NewDownloader(testClient(), mediaDir).FetchImage(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindNetwork))

	entries, _ := os.ReadDir(mediaDir)
	assert.Empty(t, entries, "failed download must not leave a directory behind")
}

func TestCleanup_IgnoresForeignPaths(t *testing.T) {
	mediaDir := t.TempDir()
	outside := t.TempDir()
	victim := filepath.Join(outside, "keep.txt")
	require.NoError(t, os.WriteFile(victim, []byte("x"), 0o644))

	d := NewDownloader(testClient(), mediaDir)
	d.Cleanup(victim)
	d.Cleanup(filepath.Join(mediaDir, "top-level-file"))

	_, err := os.Stat(victim)
	assert.NoError(t, err)
	_, err = os.Stat(mediaDir)
	assert.NoError(t, err)
}

func TestSaveDocument(t *testing.T) {
	body := "name,value\na,1\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	workDir := t.TempDir()
	d := NewDownloader(testClient(), t.TempDir())
	existing := filepath.Join(workDir, "data.csv")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	path, err := d.SaveDocument(context.Background(), srv.URL, workDir, "data.csv")
	require.NoError(t, err)
	assert.Equal(t, existing, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data), "collisions overwrite")

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no partial files may remain")
}

func TestSaveDocument_NameHandling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	workDir := t.TempDir()
	d := NewDownloader(testClient(), t.TempDir())

	path, err := d.SaveDocument(context.Background(), srv.URL, workDir, "../../escape.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "escape.txt"), path)

	for _, bad := range []string{"", ".", "..", "/"} {
		_, err := d.SaveDocument(context.Background(), srv.URL, workDir, bad)
		assert.True(t, errors.Is(err, errors.KindInvalid), "name %q", bad)
	}
}

func TestSaveDocument_FailureKeepsExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	existing := filepath.Join(workDir, "notes.md")
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0o644))

	_, err := NewDownloader(testClient(), t.TempDir()).SaveDocument(context.Background(), srv.URL, workDir, "notes.md")
	require.Error(t, err)

	data, _ := os.ReadFile(existing)
	assert.Equal(t, "keep me", string(data))
	entries, _ := os.ReadDir(workDir)
	assert.Len(t, entries, 1)
}
