package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/simple-batch-go/extract"
	"github.com/nachoal/simple-batch-go/llm"
	"github.com/nachoal/simple-batch-go/llm/openai"
	"github.com/nachoal/simple-batch-go/task"
)

type fakeFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("download failed: status 404")
	}
	return data, nil
}

type failingClient struct{}

func (failingClient) Do(context.Context, *llm.ChatRequest) (*llm.RawResponse, error) {
	return nil, errors.New("connection refused")
}

func (failingClient) Chat(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("connection refused")
}

func (failingClient) Close() error { return nil }

// testServer answers every completion request with status and body and counts hits
func testServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestExecutor(t *testing.T, baseURL string, fetcher Fetcher) (*Executor, Config) {
	t.Helper()
	client, err := openai.NewClient(llm.WithAPIKey("test"), llm.WithBaseURL(baseURL))
	require.NoError(t, err)

	root := t.TempDir()
	cfg := Config{
		OutputDir:    filepath.Join(root, "output"),
		ImageDir:     filepath.Join(root, "images"),
		DefaultModel: task.DefaultModel,
	}
	require.NoError(t, os.MkdirAll(cfg.ImageDir, 0755))

	e := New(client,
		WithConfig(cfg),
		WithFetcher(fetcher),
		WithExtractor(extract.New(extract.StrategyMarkdownImage, "")),
	)
	return e, cfg
}

func TestExecuteDownloadsMarkdownImage(t *testing.T) {
	body := `{"id":"r1","choices":[{"index":0,"message":{"role":"assistant","content":"![x](https://ex.com/a.png)"}}]}`
	srv, hits := testServer(t, http.StatusOK, body)
	fetcher := &fakeFetcher{files: map[string][]byte{"https://ex.com/a.png": []byte("PNGDATA")}}
	e, _ := newTestExecutor(t, srv.URL, fetcher)

	out := e.Execute(context.Background(), task.Task{Name: "t1", Prompt: "hi"}, 1)

	require.NoError(t, out.Err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Downloads)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	data, err := os.ReadFile(filepath.Join(out.Dir, "r1-0-0.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(data))

	text, err := os.ReadFile(filepath.Join(out.Dir, TextFile))
	require.NoError(t, err)
	assert.Equal(t, "![x](https://ex.com/a.png)\n\n", string(text))

	raw, err := os.ReadFile(filepath.Join(out.Dir, ResponseFile))
	require.NoError(t, err)
	assert.JSONEq(t, body, string(raw))
}

func TestExecuteWritesTaskInfo(t *testing.T) {
	srv, _ := testServer(t, http.StatusOK, `{"id":"r1","choices":[]}`)
	e, _ := newTestExecutor(t, srv.URL, &fakeFetcher{})
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	e.now = func() time.Time { return at }

	out := e.Execute(context.Background(), task.Task{Name: "info", Prompt: "p <b>"}, 4)
	require.True(t, out.Success)
	assert.Equal(t, "20240506070809_4", out.ID)
	assert.Equal(t, "20240506070809_4_info", filepath.Base(out.Dir))

	data, err := os.ReadFile(filepath.Join(out.Dir, InfoFile))
	require.NoError(t, err)

	var info Info
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, "20240506070809_4", info.ID)
	assert.Equal(t, "p <b>", info.Prompt)
	assert.Equal(t, task.DefaultModel, info.Model)
	assert.Equal(t, []string{}, info.Images)
	assert.Contains(t, string(data), "p <b>")
}

func TestExecuteDownloadsAreIndependent(t *testing.T) {
	content := "![a](https://ex.com/missing.png) and ![b](https://ex.com/ok.jpg)"
	body := fmt.Sprintf(`{"id":"r2","choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`, content)
	srv, _ := testServer(t, http.StatusOK, body)
	fetcher := &fakeFetcher{files: map[string][]byte{"https://ex.com/ok.jpg": []byte("JPG")}}
	e, _ := newTestExecutor(t, srv.URL, fetcher)

	out := e.Execute(context.Background(), task.Task{Name: "two", Prompt: "p"}, 1)

	require.True(t, out.Success)
	assert.Equal(t, 1, out.Downloads)
	assert.Len(t, fetcher.calls, 2)
	assert.FileExists(t, filepath.Join(out.Dir, "r2-0-1.jpg"))
	assert.NoFileExists(t, filepath.Join(out.Dir, "r2-0-0.png"))
}

func TestExecuteHTTPFetcherSkipsFailedDownloads(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("REALPNG"))
	}))
	t.Cleanup(images.Close)

	gone := httptest.NewServer(http.NotFoundHandler())
	goneURL := gone.URL
	gone.Close()

	content := fmt.Sprintf("![a](%s/ok.png) ![b](%s/missing.png) ![c](%s/down.png)", images.URL, images.URL, goneURL)
	body := fmt.Sprintf(`{"id":"r3","choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`, content)
	srv, _ := testServer(t, http.StatusOK, body)
	e, _ := newTestExecutor(t, srv.URL, NewHTTPFetcher(5*time.Second))

	out := e.Execute(context.Background(), task.Task{Name: "real", Prompt: "p"}, 1)

	require.NoError(t, out.Err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Downloads)

	data, err := os.ReadFile(filepath.Join(out.Dir, "r3-0-0.png"))
	require.NoError(t, err)
	assert.Equal(t, "REALPNG", string(data))
	assert.NoFileExists(t, filepath.Join(out.Dir, "r3-0-1.png"))
	assert.NoFileExists(t, filepath.Join(out.Dir, "r3-0-2.png"))
}

func TestHTTPFetcherRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL+"/x.png")
	assert.EqualError(t, err, "download failed: status 502")
}

func TestExecuteResponseIDCannotEscapeTaskDir(t *testing.T) {
	body := `{"id":"../../escaped","choices":[{"index":0,"message":{"role":"assistant","content":"![x](https://ex.com/a.png)"}}]}`
	srv, _ := testServer(t, http.StatusOK, body)
	fetcher := &fakeFetcher{files: map[string][]byte{"https://ex.com/a.png": []byte("PNGDATA")}}
	e, cfg := newTestExecutor(t, srv.URL, fetcher)

	out := e.Execute(context.Background(), task.Task{Name: "evil", Prompt: "p"}, 1)

	require.True(t, out.Success)
	assert.Equal(t, 1, out.Downloads)
	assert.FileExists(t, filepath.Join(out.Dir, "_.._escaped-0-0.png"))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "escaped-0-0.png"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cfg.OutputDir), "escaped-0-0.png"))

	entries, err := os.ReadDir(out.Dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{InfoFile, ResponseFile, TextFile, "_.._escaped-0-0.png"}, names)
}

func TestExecuteRejectsTooManyImagesWithoutRequest(t *testing.T) {
	srv, hits := testServer(t, http.StatusOK, `{}`)
	e, _ := newTestExecutor(t, srv.URL, &fakeFetcher{})

	images := make([]string, task.MaxImages+1)
	for i := range images {
		images[i] = fmt.Sprintf("img%d.png", i)
	}
	out := e.Execute(context.Background(), task.Task{Name: "many", Prompt: "p", Images: images}, 1)

	assert.False(t, out.Success)
	var ve *ValidationError
	assert.ErrorAs(t, out.Err, &ve)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
	assert.FileExists(t, filepath.Join(out.Dir, InfoFile))
}

func TestExecuteMissingImage(t *testing.T) {
	srv, hits := testServer(t, http.StatusOK, `{}`)
	e, _ := newTestExecutor(t, srv.URL, &fakeFetcher{})

	out := e.Execute(context.Background(), task.Task{Name: "img", Prompt: "p", Images: []string{"nope.png"}}, 1)

	var ie *ImageReadError
	assert.ErrorAs(t, out.Err, &ie)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestExecuteSendsImages(t *testing.T) {
	var got llm.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"r","choices":[]}`))
	}))
	defer srv.Close()

	e, cfg := newTestExecutor(t, srv.URL, &fakeFetcher{})
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ImageDir, "a.jpg"), []byte("abc"), 0644))

	out := e.Execute(context.Background(), task.Task{Name: "send", Prompt: "p", Images: []string{"a.jpg"}, Model: "m"}, 1)
	require.True(t, out.Success)

	require.Len(t, got.Messages, 1)
	parts := got.Messages[0].Content
	require.Len(t, parts, 2)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, llm.PartTypeText, parts[0].Type)
	assert.Equal(t, "data:image/jpeg;base64,YWJj", parts[1].ImageURL.URL)
}

func TestExecuteClassifiesReplies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"slow down"}}`,
			check: func(t *testing.T, err error) {
				var ae *APIError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, http.StatusTooManyRequests, ae.StatusCode)
				assert.Contains(t, ae.Body, "slow down")
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `not json`,
			check: func(t *testing.T, err error) {
				var pe *ParseError
				assert.ErrorAs(t, err, &pe)
			},
		},
		{
			name:   "embedded error object",
			status: http.StatusOK,
			body:   `{"error":{"message":"quota exceeded","type":"billing"}}`,
			check: func(t *testing.T, err error) {
				var ae *APIError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, "quota exceeded", ae.Message)
			},
		},
		{
			name:   "embedded error string",
			status: http.StatusOK,
			body:   `{"error":"bad token"}`,
			check: func(t *testing.T, err error) {
				var ae *APIError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, "bad token", ae.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, tt.status, tt.body)
			e, _ := newTestExecutor(t, srv.URL, &fakeFetcher{})

			out := e.Execute(context.Background(), task.Task{Name: "c", Prompt: "p"}, 1)

			assert.False(t, out.Success)
			tt.check(t, out.Err)

			raw, err := os.ReadFile(filepath.Join(out.Dir, ResponseFile))
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(raw))
		})
	}
}

func TestExecuteNoChoicesSucceeds(t *testing.T) {
	srv, _ := testServer(t, http.StatusOK, `{"id":"r"}`)
	e, _ := newTestExecutor(t, srv.URL, &fakeFetcher{})

	out := e.Execute(context.Background(), task.Task{Name: "empty", Prompt: "p"}, 1)

	assert.True(t, out.Success)
	assert.Equal(t, 0, out.Downloads)
	assert.NoFileExists(t, filepath.Join(out.Dir, TextFile))
}

func TestExecuteNetworkError(t *testing.T) {
	e := New(failingClient{}, WithConfig(Config{OutputDir: t.TempDir(), ImageDir: t.TempDir()}))

	out := e.Execute(context.Background(), task.Task{Name: "net", Prompt: "p"}, 1)

	var ne *NetworkError
	assert.ErrorAs(t, out.Err, &ne)
	assert.False(t, out.Success)
}

func TestExecuteCancelledGate(t *testing.T) {
	srv, hits := testServer(t, http.StatusOK, `{}`)
	e, _ := newTestExecutor(t, srv.URL, &fakeFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := e.Execute(ctx, task.Task{Name: "cancel", Prompt: "p"}, 1)

	var ne *NetworkError
	assert.ErrorAs(t, out.Err, &ne)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestExecuteDirectoriesNeverCollide(t *testing.T) {
	srv, _ := testServer(t, http.StatusOK, `{"id":"r","choices":[]}`)
	e, _ := newTestExecutor(t, srv.URL, &fakeFetcher{})
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	e.now = func() time.Time { return at }

	first := e.Execute(context.Background(), task.Task{Name: "same", Prompt: "p"}, 1)
	second := e.Execute(context.Background(), task.Task{Name: "same", Prompt: "p"}, 1)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.NotEqual(t, first.Dir, second.Dir)
	assert.Equal(t, first.Dir+"-2", second.Dir)

	e.now = func() time.Time { return at.Add(time.Second) }
	third := e.Execute(context.Background(), task.Task{Name: "same", Prompt: "p"}, 1)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a_b", sanitizeName("a/b"))
	assert.Equal(t, "task", sanitizeName("  "))
	assert.Equal(t, "task", sanitizeName(".."))
	assert.Equal(t, "cat_1", sanitizeName("cat_1"))
}

func TestPreview(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, preview(short))

	long := make([]rune, contentPreviewLen+10)
	for i := range long {
		long[i] = '图'
	}
	got := []rune(preview(string(long)))
	assert.Len(t, got, contentPreviewLen+3)
}
