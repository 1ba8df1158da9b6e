package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
	"github.com/ch2church/worship-storyboard/internal/utils"
)

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"/a/b/":              "a/b",
		"a//b":               "a/b",
		`2024-06-09\kim\x`:   "2024-06-09/kim/x",
		"./a/./b":            "a/b",
		" spaced/segment.md ": "spaced/segment.md",
	}
	for in, want := range cases {
		got, err := CleanPath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := CleanPath("a/../../etc/passwd")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(ctx, "2024-06-09/kim/draft/submission.json")
	assert.True(t, apperrors.IsNotFoundError(err))

	v1, err := fs.Put(ctx, "2024-06-09/kim/draft/submission.json", []byte(`{"a":1}`), "save draft")
	require.NoError(t, err)
	assert.Equal(t, VersionTag([]byte(`{"a":1}`)), v1)

	v2, err := fs.Put(ctx, "/2024-06-09/kim/draft/submission.json", []byte(`{"a":2}`), "save draft")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	data, err := fs.Get(ctx, "2024-06-09/kim/draft/submission.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	_, err = fs.Put(ctx, "2024-06-09/lee/20240609-100000-abcdef12/submission.json", []byte("{}"), "")
	require.NoError(t, err)
	_, err = fs.Put(ctx, "2024-06-09/notes.txt", []byte("x"), "")
	require.NoError(t, err)

	entries, err := fs.List(ctx, "2024-06-09")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "kim", Path: "2024-06-09/kim", Kind: EntryDir},
		{Name: "lee", Path: "2024-06-09/lee", Kind: EntryDir},
		{Name: "notes.txt", Path: "2024-06-09/notes.txt", Kind: EntryFile},
	}, entries)

	_, err = fs.List(ctx, "2030-01-01")
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = fs.Put(ctx, "../escape.json", []byte("{}"), "")
	assert.True(t, apperrors.IsValidationError(err))

}

func TestFileStorageConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fs.Put(ctx, "shared/blob.bin", []byte(strings.Repeat("x", i+1)), "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	data, err := fs.Get(ctx, "shared/blob.bin")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, strings.Repeat("x", len(data)), string(data))
}

type countingStore struct {
	BlobStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, p string) ([]byte, error) {
	c.gets++
	return c.BlobStore.Get(ctx, p)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	_, err = fs.Put(ctx, "bible/jhn/3.json", []byte(`[{"verse":16}]`), "")
	require.NoError(t, err)

	inner := &countingStore{BlobStore: fs}
	cached := NewCachedStore(inner, 2, time.Minute)

	for i := 0; i < 3; i++ {
		data, err := cached.Get(ctx, "/bible/jhn/3.json")
		require.NoError(t, err)
		assert.Equal(t, `[{"verse":16}]`, string(data))
	}
	assert.Equal(t, 1, inner.gets)

	_, err = cached.Put(ctx, "bible/jhn/3.json", []byte(`[]`), "")
	require.NoError(t, err)
	data, err := cached.Get(ctx, "bible/jhn/3.json")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
	assert.Equal(t, 1, inner.gets)

	_, err = cached.Get(ctx, "bible/jhn/4.json")
	assert.True(t, apperrors.IsNotFoundError(err))

	for _, p := range []string{"a", "b", "c"} {
		_, err := cached.Put(ctx, p, []byte(p), "")
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, cached.Len(), 2)

	cached.Invalidate("bible")
	_, err = cached.Get(ctx, "bible/jhn/3.json")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.gets)
}

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	metrics := utils.NewAPIMetricsWith(utils.NewMetricsCollector())
	store := Instrument(fs, "local", metrics)

	_, err = store.Put(ctx, "x.json", []byte("{}"), "")
	require.NoError(t, err)
	_, err = store.Get(ctx, "missing.json")
	require.Error(t, err)

	c := metrics.Collector()
	assert.EqualValues(t, 1, c.GetCounterValue("store_put_total"))
	assert.EqualValues(t, 1, c.GetCounterValue("store_get_total"))
	assert.EqualValues(t, 1, c.GetCounterValue("store_get_errors"))
}

// fakeGitHub serves the subset of the contents API the store uses.
type fakeGitHub struct {
	mu          sync.Mutex
	files       map[string][]byte
	rejectWrite int
	lastPut     putRequest
	seq         int
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/repos/church/storyboards/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	p := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/")

	switch r.Method {
	case http.MethodGet:
		if data, ok := f.files[p]; ok {
			if r.Header.Get("Accept") == "application/vnd.github.raw" {
				_, _ = w.Write(data)
				return
			}
			item := contentItem{Type: "file", Name: p[strings.LastIndex(p, "/")+1:], Path: p, Sha: VersionTag(data)}
			if len(data) > 16 {
				item.Encoding = "none"
			} else {
				item.Encoding = "base64"
				item.Content = base64.StdEncoding.EncodeToString(data) + "\n"
			}
			_ = json.NewEncoder(w).Encode(item)
			return
		}
		var items []contentItem
		seen := map[string]bool{}
		for fp := range f.files {
			rest, ok := strings.CutPrefix(fp, p+"/")
			if p == "" {
				rest, ok = fp, true
			}
			if !ok {
				continue
			}
			name, _, nested := strings.Cut(rest, "/")
			if seen[name] {
				continue
			}
			seen[name] = true
			typ := "file"
			if nested {
				typ = "dir"
			}
			items = append(items, contentItem{Type: typ, Name: name, Path: strings.TrimPrefix(p+"/"+name, "/")})
		}
		if len(items) == 0 {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(items)
	case http.MethodPut:
		if f.rejectWrite != 0 {
			http.Error(w, `{"message":"rejected"}`, f.rejectWrite)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req putRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastPut = req
		if cur, ok := f.files[p]; ok && req.Sha != VersionTag(cur) {
			http.Error(w, `{"message":"sha mismatch"}`, http.StatusConflict)
			return
		}
		data, _ := base64.StdEncoding.DecodeString(req.Content)
		status := http.StatusCreated
		if _, ok := f.files[p]; ok {
			status = http.StatusOK
		}
		f.files[p] = data
		w.WriteHeader(status)
		var resp putResponse
		resp.Content.Sha = VersionTag(data)
		_ = json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newGitHubFixture(t *testing.T) (*GitHubStore, *fakeGitHub) {
	t.Helper()
	fake := &fakeGitHub{files: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewGitHubStore(GitHubConfig{Owner: "church", Repo: "storyboards", Token: "t0ken", BaseURL: srv.URL})
	require.NoError(t, err)
	return store, fake
}

func TestGitHubStore(t *testing.T) {
	ctx := context.Background()
	store, fake := newGitHubFixture(t)

	_, err := store.Get(ctx, "2024-06-09/kim/draft/submission.json")
	assert.True(t, apperrors.IsNotFoundError(err))

	v1, err := store.Put(ctx, "2024-06-09/kim/draft/submission.json", []byte(`{"v":1}`), "")
	require.NoError(t, err)
	assert.Equal(t, VersionTag([]byte(`{"v":1}`)), v1)
	assert.Empty(t, fake.lastPut.Sha)
	assert.Equal(t, "main", fake.lastPut.Branch)
	assert.Equal(t, "Update 2024-06-09/kim/draft/submission.json", fake.lastPut.Message)

	_, err = store.Put(ctx, "2024-06-09/kim/draft/submission.json", []byte(`{"v":2}`), "save draft")
	require.NoError(t, err)
	assert.Equal(t, v1, fake.lastPut.Sha)

	data, err := store.Get(ctx, "2024-06-09/kim/draft/submission.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	large := []byte(strings.Repeat("large-file ", 10))
	_, err = store.Put(ctx, "2024-06-09/kim/draft/files/abcd1234_slide.png", large, "")
	require.NoError(t, err)
	data, err = store.Get(ctx, "2024-06-09/kim/draft/files/abcd1234_slide.png")
	require.NoError(t, err)
	assert.Equal(t, large, data)

	entries, err := store.List(ctx, "2024-06-09/kim/draft")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "files", Path: "2024-06-09/kim/draft/files", Kind: EntryDir},
		{Name: "submission.json", Path: "2024-06-09/kim/draft/submission.json", Kind: EntryFile},
	}, entries)

	_, err = store.List(ctx, "2024-06-09/kim/draft/submission.json")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestGitHubStoreRejectedWrite(t *testing.T) {
	store, fake := newGitHubFixture(t)
	fake.rejectWrite = http.StatusUnprocessableEntity

	_, err := store.Put(context.Background(), "2024-06-09/kim/draft/submission.json", []byte("{}"), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsRemoteWriteError(err))
	assert.Equal(t, http.StatusUnprocessableEntity, apperrors.StatusOf(err))
}

func TestGitHubStoreConfig(t *testing.T) {
	_, err := NewGitHubStore(GitHubConfig{Owner: "church"})
	assert.True(t, apperrors.IsValidationError(err))

	store, err := NewGitHubStore(GitHubConfig{Owner: "church", Repo: "sb"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com/repos/church/sb/contents/2024-06-09/%EA%B9%80", store.contentsURL("2024-06-09/김"))
}

func TestChildEntries(t *testing.T) {
	paths := []string{
		"2024-06-09/kim/draft/submission.json",
		"2024-06-09/kim/draft/files/a.png",
		"2024-06-09/lee/x/submission.json",
		"2024-06-09/readme.md",
	}
	assert.Equal(t, []Entry{
		{Name: "kim", Path: "2024-06-09/kim", Kind: EntryDir},
		{Name: "lee", Path: "2024-06-09/lee", Kind: EntryDir},
		{Name: "readme.md", Path: "2024-06-09/readme.md", Kind: EntryFile},
	}, childEntries("2024-06-09", paths))

	assert.Equal(t, []Entry{{Name: "2024-06-09", Path: "2024-06-09", Kind: EntryDir}}, childEntries("", paths))
	assert.Equal(t, `a\_b\%c`, escapeLike("a_b%c"))
	assert.Equal(t, "", parentOf("top.json"))
	assert.Equal(t, "a/b", parentOf("a/b/c.json"))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("STORYBOARD_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("STORYBOARD_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := ConnectPostgres(dsn)
	require.NoError(t, err)
	require.NoError(t, store.DB.Exec("delete from blobs where path like 'pgtest/%'").Error)

	_, err = store.Get(ctx, "pgtest/none.json")
	assert.True(t, apperrors.IsNotFoundError(err))

	v1, err := store.Put(ctx, "pgtest/a/submission.json", []byte("one"), "first")
	require.NoError(t, err)
	_, err = store.Put(ctx, "pgtest/a/submission.json", []byte("two"), "second")
	require.NoError(t, err)

	data, err := store.Get(ctx, "pgtest/a/submission.json")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	var rec BlobRecord
	require.NoError(t, store.DB.Where("path = ?", "pgtest/a/submission.json").First(&rec).Error)
	assert.Equal(t, v1, rec.Meta["previous_version"])
	assert.Equal(t, "pgtest/a", rec.Parent)

	entries, err := store.List(ctx, "pgtest")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Name: "a", Path: "pgtest/a", Kind: EntryDir}}, entries)
}
