package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/truemediaorg/postrelay/database/db"
	"github.com/truemediaorg/postrelay/instagram"
	"github.com/truemediaorg/postrelay/metrics"
	"github.com/truemediaorg/postrelay/model"
	"github.com/truemediaorg/postrelay/relay"

	log "github.com/sirupsen/logrus"
)

const (
	maxRequestBodyBytes = 1 << 20
	activityLogTimeout  = 5 * time.Second
)

type PostResolver interface {
	ResolveIdentifier(ctx context.Context, identifier string, selection model.Selection) (*model.ResolutionResult, error)
}

type ActivityRecorder interface {
	AddResolution(ctx context.Context, identifier string, selection model.Selection, assetCount int, outcome string) error
	AddRelay(ctx context.Context, filename string, mode db.RelayMode, written int, omitted int, bytes int64, outcome string) error
}

// NoopActivity is used when no activity log database is configured.
type NoopActivity struct{}

func (NoopActivity) AddResolution(context.Context, string, model.Selection, int, string) error {
	return nil
}

func (NoopActivity) AddRelay(context.Context, string, db.RelayMode, int, int, int64, string) error {
	return nil
}

type API struct {
	resolver PostResolver
	relay    *relay.Relay
	archiver *relay.Archiver
	activity ActivityRecorder
	metrics  *metrics.Metrics

	// in-flight activity writes
	pending sync.WaitGroup
}

func NewAPI(resolver PostResolver, streamRelay *relay.Relay, activity ActivityRecorder) *API {
	if activity == nil {
		activity = NoopActivity{}
	}
	return &API{
		resolver: resolver,
		relay:    streamRelay,
		archiver: relay.NewArchiver(streamRelay),
		activity: activity,
		metrics:  metrics.NewMetrics(),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.route(mux, "POST /api/download", "download", a.handleDownload)
	a.route(mux, "GET /api/resolve", "resolve", a.handleResolve)
	a.route(mux, "POST /api/stream", "stream", a.handleStream)
	a.route(mux, "GET /download_proxy", "download_proxy", a.handleDownloadProxy)
	mux.Handle("GET /healthz", handleHealthcheck())
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type downloadRequest struct {
	URL        string `json:"url"`
	Preference string `json:"preference"`
	All        bool   `json:"all"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Request body must be JSON."})
		return
	}
	a.resolve(w, r, body)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all, _ := strconv.ParseBool(q.Get("all"))
	a.resolve(w, r, downloadRequest{
		URL:        q.Get("url"),
		Preference: q.Get("preference"),
		All:        all,
	})
}

func (a *API) resolve(w http.ResponseWriter, r *http.Request, body downloadRequest) {
	if body.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing 'url' in request body."})
		return
	}
	preference, err := model.ParsePreference(body.Preference)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	selection := model.SelectOne(preference)
	if body.All {
		selection = model.SelectAll()
	}

	identifier, err := instagram.ExtractShortcode(body.URL)
	if err != nil {
		a.metrics.ResolveTotal.WithLabelValues(selection.Mode.String(), model.OutcomeOf(err)).Inc()
		writeError(w, err)
		return
	}

	result, err := a.resolver.ResolveIdentifier(r.Context(), identifier, selection)
	outcome := model.OutcomeOf(err)
	a.metrics.ResolveTotal.WithLabelValues(selection.Mode.String(), outcome).Inc()
	if err != nil {
		writeError(w, err)
	} else {
		writeJSON(w, http.StatusOK, result)
	}

	assetCount := 0
	if result != nil {
		assetCount = len(result.Assets)
	}
	a.recordActivity(r.Context(), func(ctx context.Context) error {
		return a.activity.AddResolution(ctx, identifier, selection, assetCount, outcome)
	})
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	var req model.StreamRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeError(w, model.NewError(model.ClassMalformedStreamRequest, "request body must be a JSON stream request", err))
		return
	}
	a.stream(w, r, req)
}

// handleDownloadProxy serves the single-asset GET form: ?url=&filename=[&isVideo=].
// Without isVideo the kind is taken from the filename extension. A .zip filename names the
// archive only; the entry inside gets a name derived from it.
func (a *API) handleDownloadProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filename := q.Get("filename")
	isVideo := strings.EqualFold(path.Ext(filename), ".mp4")
	if raw := q.Get("isVideo"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, model.Errorf(model.ClassMalformedStreamRequest, "isVideo must be true or false"))
			return
		}
		isVideo = parsed
	}
	entryFilename := filename
	if strings.EqualFold(path.Ext(filename), ".zip") {
		entryFilename = ""
	}
	a.stream(w, r, model.StreamRequest{
		Filename: filename,
		Assets:   []model.StreamAsset{{URL: q.Get("url"), Filename: entryFilename, IsVideo: &isVideo}},
	})
}

func (a *API) stream(w http.ResponseWriter, r *http.Request, req model.StreamRequest) {
	assets, err := req.Validate()
	if err != nil {
		a.metrics.StreamTotal.WithLabelValues("invalid", model.OutcomeOf(err)).Inc()
		writeError(w, err)
		return
	}
	if req.WantsArchive() {
		a.streamArchive(w, r, assets, model.ArchiveFilename(req.Filename))
	} else {
		a.streamSingle(w, r, assets[0], req.Filename)
	}
}

func (a *API) streamSingle(w http.ResponseWriter, r *http.Request, asset model.Asset, filename string) {
	streamLog := log.WithField("filename", filename)
	var written int64
	var streamErr error
	defer func() {
		outcome := model.OutcomeOf(streamErr)
		a.metrics.StreamTotal.WithLabelValues("single", outcome).Inc()
		a.metrics.RelayBytesTotal.WithLabelValues("single").Add(float64(written))
		a.recordActivity(r.Context(), func(ctx context.Context) error {
			entries := 0
			if streamErr == nil {
				entries = 1
			}
			return a.activity.AddRelay(ctx, filename, db.RelayModeSingle, entries, 1-entries, written, outcome)
		})
	}()

	origin, err := a.relay.Open(r.Context(), asset)
	if err != nil {
		streamErr = err
		streamLog.Errorf("proxy download error: %v", err)
		writeError(w, err)
		return
	}
	defer origin.Close()

	header := w.Header()
	header.Set("Content-Type", asset.Kind.ContentType())
	header.Set("Content-Disposition", attachmentDisposition(filename))
	header.Set("X-Content-Type-Options", "nosniff")
	if origin.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(origin.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	// From here on the status is committed; a failure can only truncate the body
	written, streamErr = origin.CopyTo(w)
	switch {
	case streamErr == nil:
		streamLog.WithField("bytes", written).Info("relayed asset")
	case errors.Is(streamErr, relay.ErrSinkClosed):
		streamLog.WithField("bytes", written).Info("client went away mid-stream")
	default:
		streamLog.WithField("bytes", written).Errorf("stream broken after headers were sent: %v", streamErr)
	}
}

func (a *API) streamArchive(w http.ResponseWriter, r *http.Request, assets []model.Asset, filename string) {
	streamLog := log.WithField("filename", filename).WithField("assets", len(assets))

	header := w.Header()
	header.Set("Content-Type", "application/zip")
	header.Set("Content-Disposition", attachmentDisposition(filename))
	header.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	outcome, err := a.archiver.Archive(r.Context(), assets, w)
	a.metrics.StreamTotal.WithLabelValues("archive", model.OutcomeOf(err)).Inc()
	a.metrics.RelayBytesTotal.WithLabelValues("archive").Add(float64(outcome.Bytes))
	a.metrics.ArchiveEntriesTotal.WithLabelValues("written").Add(float64(len(outcome.Written)))
	a.metrics.ArchiveEntriesTotal.WithLabelValues("omitted").Add(float64(len(outcome.Omitted)))

	streamLog = streamLog.WithField("written", len(outcome.Written)).WithField("omitted", len(outcome.Omitted)).WithField("bytes", outcome.Bytes)
	switch {
	case err == nil && len(outcome.Written) == 0:
		streamLog.Warn("every archive entry failed, sent an empty archive")
	case err == nil:
		streamLog.Info("relayed archive")
	case errors.Is(err, relay.ErrSinkClosed):
		streamLog.Info("client went away mid-archive")
	default:
		streamLog.Errorf("archive broken after headers were sent: %v", err)
	}

	a.recordActivity(r.Context(), func(ctx context.Context) error {
		return a.activity.AddRelay(ctx, filename, db.RelayModeArchive, len(outcome.Written), len(outcome.Omitted), outcome.Bytes, model.OutcomeOf(err))
	})
}

// recordActivity runs fn in the background so the response never waits on the activity log.
// fn keeps the request's values but not its cancellation, and gets activityLogTimeout.
// Failures are logged only.
func (a *API) recordActivity(parent context.Context, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), activityLogTimeout)
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warnf("activity not recorded: %v", err)
		}
	}()
}

// Wait blocks until every activity write started so far has finished.
func (a *API) Wait() {
	a.pending.Wait()
}

func (a *API) route(mux *http.ServeMux, pattern string, name string, handler http.HandlerFunc) {
	method, _, _ := strings.Cut(pattern, " ")
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		a.metrics.HTTPRequestTotal.WithLabelValues(method, name, strconv.Itoa(recorder.status)).Inc()
		a.metrics.HTTPRequestDuration.WithLabelValues(method, name).Observe(time.Since(start).Seconds())
	}))
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(status int) {
	if !s.wroteHeader {
		s.status = status
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(p)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, model.ClassOf(err).HTTPStatus(), errorResponse{Error: model.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debugf("error writing response: %v", err)
	}
}

// attachmentDisposition quotes a flattened, printable-ASCII version of filename.
func attachmentDisposition(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}
