package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/truemediaorg/postrelay/database/db"
	"github.com/truemediaorg/postrelay/model"
	"github.com/truemediaorg/postrelay/relay"
)

type MockPostResolver struct {
	mock.Mock
}

func (m *MockPostResolver) ResolveIdentifier(ctx context.Context, identifier string, selection model.Selection) (*model.ResolutionResult, error) {
	args := m.Called(ctx, identifier, selection)
	result, _ := args.Get(0).(*model.ResolutionResult)
	return result, args.Error(1)
}

type MockActivityRecorder struct {
	mock.Mock
}

func (m *MockActivityRecorder) AddResolution(ctx context.Context, identifier string, selection model.Selection, assetCount int, outcome string) error {
	args := m.Called(ctx, identifier, selection, assetCount, outcome)
	return args.Error(0)
}

func (m *MockActivityRecorder) AddRelay(ctx context.Context, filename string, mode db.RelayMode, written int, omitted int, bytes int64, outcome string) error {
	args := m.Called(ctx, filename, mode, written, omitted, bytes, outcome)
	return args.Error(0)
}

// fixture CDN: /ok/<name> serves "bytes of <name>", /chunked/<name> the same without a
// Content-Length, anything else fails with 500
type fixtureOrigin struct {
	*httptest.Server
	hits atomic.Int32
}

func newFixtureOrigin(t *testing.T) *fixtureOrigin {
	origin := &fixtureOrigin{}
	origin.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin.hits.Add(1)
		if name, ok := strings.CutPrefix(r.URL.Path, "/ok/"); ok {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("bytes of " + name))
			return
		}
		if name, ok := strings.CutPrefix(r.URL.Path, "/chunked/"); ok {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.(http.Flusher).Flush()
			w.Write([]byte("bytes of " + name))
			return
		}
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	t.Cleanup(origin.Close)
	return origin
}

func newTestAPI(resolver PostResolver, activity ActivityRecorder) *API {
	return NewAPI(resolver, relay.NewRelay(nil, relay.IdentityPool{}, 0), activity)
}

// serve runs one request and waits for the activity writes it started.
func serve(api *API, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)
	api.Wait()
	return rr
}

func doJSON(t *testing.T, api *API, method string, target string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	return serve(api, httptest.NewRequest(method, target, reader))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	var body errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func streamAsset(rawURL string, isVideo bool) model.StreamAsset {
	return model.StreamAsset{URL: rawURL, IsVideo: &isVideo}
}

func TestResolveRoutes(t *testing.T) {
	result := &model.ResolutionResult{
		Assets: []model.Asset{{
			Kind:              model.KindVideo,
			DownloadURL:       "https://cdn.test/3.mp4",
			PreviewURL:        "https://cdn.test/3.jpg",
			SuggestedFilename: "instagram_CAR_3.mp4",
		}},
		IsMultiAsset:      true,
		SelectionLabel:    "carousel, item 3 of 5, video preferred",
		PrimaryPreviewURL: "https://cdn.test/3.jpg",
	}

	t.Run("returns the resolution payload", func(t *testing.T) {
		resolver := new(MockPostResolver)
		resolver.On("ResolveIdentifier", mock.Anything, "CAR", model.SelectOne(model.PreferenceVideo)).Return(result, nil)
		activity := new(MockActivityRecorder)
		activity.On("AddResolution", mock.Anything, "CAR", model.SelectOne(model.PreferenceVideo), 1, model.OutcomeOK).Return(nil)

		rr := doJSON(t, newTestAPI(resolver, activity), http.MethodPost, "/api/download",
			downloadRequest{URL: "https://www.instagram.com/p/CAR/", Preference: "VideoPreferred"})
		require.Equal(t, http.StatusOK, rr.Code)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
		assert.Equal(t, true, payload["isMultiAsset"])
		assert.Equal(t, "carousel, item 3 of 5, video preferred", payload["selectionLabel"])
		assert.Equal(t, "https://cdn.test/3.jpg", payload["primaryPreviewURL"])
		assets := payload["assets"].([]interface{})
		require.Len(t, assets, 1)
		first := assets[0].(map[string]interface{})
		assert.Equal(t, "https://cdn.test/3.mp4", first["url"])
		assert.Equal(t, "instagram_CAR_3.mp4", first["filename"])
		assert.Equal(t, true, first["isVideo"])
		activity.AssertExpectations(t)
	})

	t.Run("supports select all over GET", func(t *testing.T) {
		resolver := new(MockPostResolver)
		resolver.On("ResolveIdentifier", mock.Anything, "CAR", model.SelectAll()).Return(result, nil)

		target := "/api/resolve?all=true&url=" + url.QueryEscape("https://www.instagram.com/p/CAR/")
		rr := doJSON(t, newTestAPI(resolver, nil), http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		resolver.AssertExpectations(t)
	})

	t.Run("rejects invalid references without resolving", func(t *testing.T) {
		resolver := new(MockPostResolver)
		rr := doJSON(t, newTestAPI(resolver, nil), http.MethodPost, "/api/download",
			downloadRequest{URL: "https://www.instagram.com/someuser/"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "invalid Instagram URL format", decodeError(t, rr))
		resolver.AssertNumberOfCalls(t, "ResolveIdentifier", 0)
	})

	t.Run("rejects a missing url", func(t *testing.T) {
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodPost, "/api/download", downloadRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Missing 'url' in request body.", decodeError(t, rr))
	})

	t.Run("rejects an unknown preference", func(t *testing.T) {
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodPost, "/api/download",
			downloadRequest{URL: "https://www.instagram.com/p/CAR/", Preference: "audio"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	testCases := []struct {
		description string
		class       model.ErrorClass
		status      int
	}{
		{"not found maps to 404", model.ClassUpstreamNotFound, http.StatusNotFound},
		{"blocked maps to 503", model.ClassUpstreamBlocked, http.StatusServiceUnavailable},
		{"transient maps to 503", model.ClassUpstreamTransient, http.StatusServiceUnavailable},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			resolver := new(MockPostResolver)
			resolver.On("ResolveIdentifier", mock.Anything, "CAR", mock.Anything).Return(nil, model.Errorf(testCase.class, "nope"))
			activity := new(MockActivityRecorder)
			activity.On("AddResolution", mock.Anything, "CAR", mock.Anything, 0, string(testCase.class)).Return(nil)

			rr := doJSON(t, newTestAPI(resolver, activity), http.MethodPost, "/api/download",
				downloadRequest{URL: "https://www.instagram.com/p/CAR/"})
			assert.Equal(t, testCase.status, rr.Code)
			assert.Equal(t, "nope", decodeError(t, rr))
			activity.AssertExpectations(t)
		})
	}
}

func TestStreamRoutes(t *testing.T) {
	t.Run("relays a single asset as an attachment", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		activity := new(MockActivityRecorder)
		activity.On("AddRelay", mock.Anything, "clip.mp4", db.RelayModeSingle, 1, 0, int64(len("bytes of clip")), model.OutcomeOK).Return(nil)

		rr := doJSON(t, newTestAPI(new(MockPostResolver), activity), http.MethodPost, "/api/stream", model.StreamRequest{
			Filename: "clip.mp4",
			Assets:   []model.StreamAsset{streamAsset(origin.URL+"/ok/clip", true)},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "video/mp4", rr.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="clip.mp4"`, rr.Header().Get("Content-Disposition"))
		assert.Equal(t, "bytes of clip", rr.Body.String())
		activity.AssertExpectations(t)
	})

	t.Run("passes the origin content length through", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodPost, "/api/stream", model.StreamRequest{
			Filename: "photo.jpg",
			Assets:   []model.StreamAsset{streamAsset(origin.URL+"/ok/photo", false)},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, strconv.Itoa(len("bytes of photo")), rr.Header().Get("Content-Length"))
		assert.Equal(t, "bytes of photo", rr.Body.String())
	})

	t.Run("omits the content length when the origin streams chunked", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodPost, "/api/stream", model.StreamRequest{
			Filename: "photo.jpg",
			Assets:   []model.StreamAsset{streamAsset(origin.URL+"/chunked/photo", false)},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Values("Content-Length"))
		assert.Equal(t, "bytes of photo", rr.Body.String())
	})

	t.Run("returns a classified error and no bytes when the origin fails", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodPost, "/api/stream", model.StreamRequest{
			Filename: "photo.jpg",
			Assets:   []model.StreamAsset{streamAsset(origin.URL+"/fail/photo", false)},
		})
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.Empty(t, rr.Header().Get("Content-Disposition"))
		assert.NotContains(t, rr.Body.String(), "upstream exploded")
	})

	t.Run("rejects malformed requests before contacting the origin", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		api := newTestAPI(new(MockPostResolver), nil)

		rr := doJSON(t, api, http.MethodPost, "/api/stream", model.StreamRequest{Filename: "x.zip"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = doJSON(t, api, http.MethodPost, "/api/stream", model.StreamRequest{
			Filename: "x.zip",
			Assets: []model.StreamAsset{
				streamAsset(origin.URL+"/ok/a", false),
				{URL: origin.URL + "/ok/b"},
			},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = serve(api, httptest.NewRequest(http.MethodPost, "/api/stream", strings.NewReader("{not json")))
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		assert.Zero(t, origin.hits.Load())
	})

	t.Run("bundles multiple assets into a zip and skips failures", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		activity := new(MockActivityRecorder)
		activity.On("AddRelay", mock.Anything, "instagram_CAR.zip", db.RelayModeArchive, 2, 1, mock.Anything, model.OutcomeOK).Return(nil)

		rr := doJSON(t, newTestAPI(new(MockPostResolver), activity), http.MethodPost, "/api/stream", model.StreamRequest{
			Filename: "instagram_CAR",
			Assets: []model.StreamAsset{
				{URL: origin.URL + "/ok/one", Filename: "instagram_CAR_1.jpg", IsVideo: new(bool)},
				{URL: origin.URL + "/fail/two", Filename: "instagram_CAR_2.jpg", IsVideo: new(bool)},
				{URL: origin.URL + "/ok/three", Filename: "instagram_CAR_3.jpg", IsVideo: new(bool)},
			},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="instagram_CAR.zip"`, rr.Header().Get("Content-Disposition"))

		body := rr.Body.Bytes()
		archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		require.NoError(t, err)
		require.Len(t, archive.File, 2)
		assert.Equal(t, "instagram_CAR_1.jpg", archive.File[0].Name)
		assert.Equal(t, "instagram_CAR_3.jpg", archive.File[1].Name)
		activity.AssertExpectations(t)
	})

	t.Run("sends an empty zip when every asset fails", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodPost, "/api/stream", model.StreamRequest{
			Filename: "bundle.zip",
			Assets: []model.StreamAsset{
				streamAsset(origin.URL+"/fail/a", false),
				streamAsset(origin.URL+"/fail/b", true),
			},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.Bytes()
		archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		require.NoError(t, err)
		assert.Empty(t, archive.File)
	})

	t.Run("archives a single asset when the filename asks for a zip", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodPost, "/api/stream", model.StreamRequest{
			Filename: "single.ZIP",
			Assets:   []model.StreamAsset{streamAsset(origin.URL+"/ok/only", false)},
		})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
		body := rr.Body.Bytes()
		archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		require.NoError(t, err)
		require.Len(t, archive.File, 1)
		assert.Equal(t, "single_1.jpg", archive.File[0].Name)
	})

	t.Run("serves the legacy download proxy route", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		target := "/download_proxy?filename=instagram_X.mp4&url=" + url.QueryEscape(origin.URL+"/ok/x")
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "video/mp4", rr.Header().Get("Content-Type"))
		assert.Equal(t, "bytes of x", rr.Body.String())
	})

	t.Run("names the entry after the archive on the legacy route", func(t *testing.T) {
		origin := newFixtureOrigin(t)
		target := "/download_proxy?filename=photo.zip&url=" + url.QueryEscape(origin.URL+"/ok/photo")
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="photo.zip"`, rr.Header().Get("Content-Disposition"))
		body := rr.Body.Bytes()
		archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
		require.NoError(t, err)
		require.Len(t, archive.File, 1)
		assert.Equal(t, "photo_1.jpg", archive.File[0].Name)
	})

	t.Run("rejects the legacy route without a url", func(t *testing.T) {
		rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodGet, "/download_proxy?filename=a.jpg", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

// slowActivity holds every write until release is closed.
type slowActivity struct {
	NoopActivity
	release chan struct{}
}

func (s slowActivity) AddResolution(ctx context.Context, identifier string, selection model.Selection, assetCount int, outcome string) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestActivityDoesNotHoldTheResponse(t *testing.T) {
	resolver := new(MockPostResolver)
	resolver.On("ResolveIdentifier", mock.Anything, "CAR", mock.Anything).Return(&model.ResolutionResult{
		Assets:         []model.Asset{{Kind: model.KindImage, DownloadURL: "https://cdn.test/1.jpg", SuggestedFilename: "instagram_CAR.jpg"}},
		SelectionLabel: "image",
	}, nil)
	activity := slowActivity{release: make(chan struct{})}
	api := newTestAPI(resolver, activity)

	raw, err := json.Marshal(downloadRequest{URL: "https://www.instagram.com/p/CAR/"})
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/download", bytes.NewReader(raw)))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler waited on the activity log")
	}
	assert.Equal(t, http.StatusOK, rr.Code)

	close(activity.release)
	api.Wait()
}

func TestHealthcheckRoute(t *testing.T) {
	rr := doJSON(t, newTestAPI(new(MockPostResolver), nil), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "all good in the hood", rr.Body.String())
}

func TestAttachmentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="photo.jpg"`, attachmentDisposition("photo.jpg"))
	assert.Equal(t, `attachment; filename="passwd"`, attachmentDisposition("../../etc/passwd"))
	assert.Equal(t, `attachment; filename="a_b_.jpg"`, attachmentDisposition("a\"b\n.jpg"))
}
