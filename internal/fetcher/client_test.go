package fetcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/api-directory/internal/fetcher"
)

const dataset = `{"data":[{"name":"OpenWeatherMap","description":"weather data","url":"https://openweathermap.org/api","categories":["Weather"]}]}`

type fakeGitHub struct {
	srv        *httptest.Server
	metaHits   atomic.Int32
	dlHits     atomic.Int32
	authHeader atomic.Value
}

func newFakeGitHub(t *testing.T, meta http.HandlerFunc, download http.HandlerFunc) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/dev-resources/contents/db/", func(w http.ResponseWriter, r *http.Request) {
		f.metaHits.Add(1)
		f.authHeader.Store(r.Header.Get("Authorization"))
		meta(w, r)
	})
	mux.HandleFunc("/raw/", func(w http.ResponseWriter, r *http.Request) {
		f.dlHits.Add(1)
		download(w, r)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGitHub) client(token string, timeout time.Duration) *fetcher.Client {
	return fetcher.New(fetcher.Config{
		APIURL:  f.srv.URL,
		Token:   token,
		Owner:   "acme",
		Repo:    "dev-resources",
		Dir:     "db",
		Timeout: timeout,
	}, nil)
}

func fileMeta(f **fakeGitHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":         "file",
			"name":         "resources.json",
			"download_url": (*f).srv.URL + "/raw/resources.json",
		})
	}
}

func TestFetchResolvesAndDownloads(t *testing.T) {
	var gh *fakeGitHub
	gh = newFakeGitHub(t, fileMeta(&gh), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dataset))
	})

	doc, err := gh.client("secret", time.Second).Fetch(context.Background(), "resources")
	require.NoError(t, err)
	require.JSONEq(t, dataset, string(doc))
	require.EqualValues(t, 1, gh.metaHits.Load())
	require.EqualValues(t, 1, gh.dlHits.Load())
	require.Equal(t, "Bearer secret", gh.authHeader.Load())
}

func TestFetchNotFound(t *testing.T) {
	var gh *fakeGitHub
	gh = newFakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}, nil)

	_, err := gh.client("", time.Second).Fetch(context.Background(), "missing")
	require.ErrorIs(t, err, fetcher.ErrNotFound)
	require.EqualValues(t, 0, gh.dlHits.Load())
}

func TestFetchMissingDownloadURL(t *testing.T) {
	var gh *fakeGitHub
	gh = newFakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"file","name":"resources.json"}`))
	}, nil)

	_, err := gh.client("", time.Second).Fetch(context.Background(), "resources")
	require.ErrorIs(t, err, fetcher.ErrNotFound)
}

func TestFetchDirectoryIsAmbiguous(t *testing.T) {
	var gh *fakeGitHub
	gh = newFakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"type":"file","name":"a.json"},{"type":"file","name":"b.json"}]`))
	}, nil)

	_, err := gh.client("", time.Second).Fetch(context.Background(), "resources")
	require.ErrorIs(t, err, fetcher.ErrAmbiguousResource)
	require.Equal(t, "", gh.authHeader.Load())
}

func TestFetchStagesAreDistinguishable(t *testing.T) {
	t.Run("metadata", func(t *testing.T) {
		var gh *fakeGitHub
		gh = newFakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusForbidden)
		}, nil)

		_, err := gh.client("", time.Second).Fetch(context.Background(), "resources")
		require.ErrorIs(t, err, fetcher.ErrTransport)

		var ferr *fetcher.Error
		require.True(t, errors.As(err, &ferr))
		require.Equal(t, fetcher.StageMetadata, ferr.Stage)
		require.Equal(t, "resources", ferr.Resource)
	})

	t.Run("download", func(t *testing.T) {
		var gh *fakeGitHub
		gh = newFakeGitHub(t, fileMeta(&gh), func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})

		_, err := gh.client("", time.Second).Fetch(context.Background(), "resources")
		require.ErrorIs(t, err, fetcher.ErrTransport)

		var ferr *fetcher.Error
		require.True(t, errors.As(err, &ferr))
		require.Equal(t, fetcher.StageDownload, ferr.Stage)
	})
}

func TestFetchInvalidJSON(t *testing.T) {
	var gh *fakeGitHub
	gh = newFakeGitHub(t, fileMeta(&gh), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [`))
	})

	_, err := gh.client("", time.Second).Fetch(context.Background(), "resources")
	require.ErrorIs(t, err, fetcher.ErrSerialization)
}

func TestFetchTimeoutIsTransportError(t *testing.T) {
	var gh *fakeGitHub
	gh = newFakeGitHub(t, fileMeta(&gh), func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	_, err := gh.client("", 50*time.Millisecond).Fetch(context.Background(), "resources")
	require.ErrorIs(t, err, fetcher.ErrTransport)
}

func TestFetchUnreachableHost(t *testing.T) {
	c := fetcher.New(fetcher.Config{APIURL: "http://127.0.0.1:1", Owner: "a", Repo: "b", Timeout: time.Second}, nil)
	_, err := c.Fetch(context.Background(), "resources")
	require.ErrorIs(t, err, fetcher.ErrTransport)
}

func TestFetchMetadataGarbageIsSerializationError(t *testing.T) {
	var gh *fakeGitHub
	gh = newFakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}, nil)

	_, err := gh.client("", time.Second).Fetch(context.Background(), "resources")
	require.ErrorIs(t, err, fetcher.ErrSerialization)

	var ferr *fetcher.Error
	require.True(t, errors.As(err, &ferr))
	require.Equal(t, fetcher.StageMetadata, ferr.Stage)
	require.EqualValues(t, 0, gh.dlHits.Load())
}

func TestFetchDirEntryIsAmbiguous(t *testing.T) {
	var gh *fakeGitHub
	gh = newFakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"dir","name":"resources.json","path":"db/resources.json"}`))
	}, nil)

	_, err := gh.client("", time.Second).Fetch(context.Background(), "resources")
	require.ErrorIs(t, err, fetcher.ErrAmbiguousResource)
}

func TestFetchRequestsContentsPath(t *testing.T) {
	var gh *fakeGitHub
	var gotPath string
	gh = newFakeGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fileMeta(&gh)(w, r)
	}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dataset))
	})

	_, err := gh.client("", time.Second).Fetch(context.Background(), "resources")
	require.NoError(t, err)
	require.Equal(t, "/repos/acme/dev-resources/contents/db/resources.json", gotPath)
}
