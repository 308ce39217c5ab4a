package sonos

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/sonos-player-go/internal/discovery"
	"github.com/strefethen/sonos-player-go/internal/history"
	"github.com/strefethen/sonos-player-go/internal/hosted"
)

type fakeRecorder struct {
	mu     sync.Mutex
	inputs []history.RecordInput
}

func (f *fakeRecorder) Record(input history.RecordInput) (*history.PlayRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return &history.PlayRecord{}, nil
}

func (f *fakeRecorder) recorded() []history.RecordInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]history.RecordInput(nil), f.inputs...)
}

type routeFixture struct {
	router   chi.Router
	lock     *DeviceSetLock
	store    *hosted.Store
	recorder *fakeRecorder
}

func newRouteFixture(devices ...discovery.Device) *routeFixture {
	return newRouteFixtureWithContext(context.Background(), devices...)
}

func newRouteFixtureWithContext(ctx context.Context, devices ...discovery.Device) *routeFixture {
	logger := log.New(io.Discard, "", 0)
	fixture := &routeFixture{
		router:   chi.NewRouter(),
		lock:     NewDeviceSetLock(logger),
		store:    hosted.NewStore(),
		recorder: &fakeRecorder{},
	}
	RegisterRoutes(fixture.router, RouteOptions{
		BaseContext:   ctx,
		Controller:    newTestController(devices, ControllerOptions{}),
		Lock:          fixture.lock,
		Store:         fixture.store,
		Recorder:      fixture.recorder,
		AdvertisePort: 5000,
		StartTimeout:  50 * time.Millisecond,
		LockTimeout:   30 * time.Millisecond,
		Logger:        logger,
	})
	return fixture
}

func (f *routeFixture) do(method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return f.serve(req)
}

func (f *routeFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestPlayRoute_PlaysAndRestores(t *testing.T) {
	renderer := newFakeRenderer(t, radioURI, radioMeta, "PLAYING", 30)
	fixture := newRouteFixture(renderer.device("kitchen", fullRange))

	rec := fixture.do(http.MethodPost, "/v1/play?url=http://10.0.0.9/clip.mp3&volume=0.25&title=Doorbell", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	payload := decodeBody(t, rec)
	require.Equal(t, "play", payload["object"])
	require.Equal(t, true, payload["played"])
	require.Equal(t, "http://10.0.0.9/clip.mp3", payload["url"])
	require.Equal(t, 0.25, payload["volume"])
	require.Equal(t, []any{"kitchen"}, payload["device_ids"])
	restore := payload["restore"].([]any)
	require.Len(t, restore, 1)
	require.Equal(t, true, restore[0].(map[string]any)["source_restored"])

	uri, meta, status, volume := renderer.state()
	require.Equal(t, radioURI, uri)
	require.Equal(t, radioMeta, meta)
	require.Equal(t, "PLAYING", status)
	require.Equal(t, 30, volume)

	recorded := fixture.recorder.recorded()
	require.Len(t, recorded, 1)
	require.Equal(t, history.KindURL, recorded[0].Kind)
	require.Equal(t, "Doorbell", recorded[0].Title)
	require.Equal(t, []string{"kitchen"}, recorded[0].DeviceIDs)
	require.NoError(t, recorded[0].Err)
}

func TestPlayRoute_ValidationErrors(t *testing.T) {
	renderer := newFakeRenderer(t, "", "", "STOPPED", 10)
	fixture := newRouteFixture(renderer.device("kitchen", fullRange))

	for _, target := range []string{
		"/v1/play?volume=0.5",
		"/v1/play?url=http://h/a.mp3",
		"/v1/play?url=http://h/a.mp3&volume=loud",
		"/v1/play?url=http://h/a.mp3&volume=1.5",
	} {
		rec := fixture.do(http.MethodPost, target, nil, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Contains(t, rec.Body.String(), "VALIDATION_ERROR", target)
	}

	require.Empty(t, renderer.callLog())
	require.Empty(t, fixture.recorder.recorded())
}

func TestPlayRoute_DeviceFaultMapsToBadGateway(t *testing.T) {
	renderer := newFakeRenderer(t, radioURI, radioMeta, "PAUSED_PLAYBACK", 30)
	renderer.failCall["SetAVTransportURI"] = 1
	fixture := newRouteFixture(renderer.device("kitchen", fullRange))

	rec := fixture.do(http.MethodPost, "/v1/play?url=http://h/a.mp3&volume=0.5", nil, "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "SONOS_REJECTED")

	uri, _, status, _ := renderer.state()
	require.Equal(t, radioURI, uri)
	require.Equal(t, "STOPPED", status)

	recorded := fixture.recorder.recorded()
	require.Len(t, recorded, 1)
	require.Error(t, recorded[0].Err)
}

func TestPlayRoute_OverlappingPlayConflicts(t *testing.T) {
	renderer := newFakeRenderer(t, "", "", "STOPPED", 10)
	fixture := newRouteFixture(renderer.device("kitchen", fullRange))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fixture.lock.WithLock([]string{"kitchen"}, time.Second, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	rec := fixture.do(http.MethodPost, "/v1/play?url=http://h/a.mp3&volume=0.5", nil, "")
	close(release)
	<-done

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "PLAY_IN_PROGRESS")
	require.Empty(t, renderer.callLog())
	require.Empty(t, fixture.recorder.recorded())
}

func TestPlayBytesRoute_HostsClip(t *testing.T) {
	renderer := newFakeRenderer(t, "", "", "STOPPED", 10)
	fixture := newRouteFixture(renderer.device("kitchen", fullRange))
	clip := []byte("RIFF....WAVEfmt ")
	sum := sha1.Sum(clip)
	hash := hex.EncodeToString(sum[:])

	rec := fixture.do(http.MethodPost, "/v1/play_bytes?volume=0.5", clip, "audio/wav; codecs=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payload := decodeBody(t, rec)
	require.Equal(t, hash, payload["hash"])
	require.Equal(t, "http://127.0.0.1:5000/v1/play_bytes_audio?hash="+hash, payload["sources"].(map[string]any)["kitchen"])

	// The renderer had no prior source, so the hosted URL stays loaded.
	uri, meta, _, _ := renderer.state()
	require.Equal(t, "http://127.0.0.1:5000/v1/play_bytes_audio?hash="+hash, uri)
	require.Contains(t, meta, "http-get:*:audio/wav:*")

	audio := fixture.do(http.MethodGet, "/v1/play_bytes_audio?hash="+hash, nil, "")
	require.Equal(t, http.StatusOK, audio.Code)
	require.Equal(t, clip, audio.Body.Bytes())
	require.Equal(t, "audio/wav", audio.Header().Get("Content-Type"))
	require.Equal(t, "attachment; filename=audio", audio.Header().Get("Content-Disposition"))
	require.Equal(t, "no-cache", audio.Header().Get("Cache-Control"))

	recorded := fixture.recorder.recorded()
	require.Len(t, recorded, 1)
	require.Equal(t, history.KindHosted, recorded[0].Kind)
	require.Equal(t, "/v1/play_bytes_audio?hash="+hash, recorded[0].Source)
}

func TestPlayBytesRoute_RequiresBody(t *testing.T) {
	renderer := newFakeRenderer(t, "", "", "STOPPED", 10)
	fixture := newRouteFixture(renderer.device("kitchen", fullRange))

	rec := fixture.do(http.MethodPost, "/v1/play_bytes?volume=0.5", nil, "audio/mpeg")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, fixture.store.Current())
}

func TestHostedAudioRoute_UnknownHash(t *testing.T) {
	fixture := newRouteFixture()

	rec := fixture.do(http.MethodGet, "/v1/play_bytes_audio?hash=abc", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	clip := fixture.store.Put([]byte("data"), "audio/mpeg")
	rec = fixture.do(http.MethodGet, "/v1/play_bytes_audio?hash=abc", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "CLIP_NOT_FOUND")

	rec = fixture.do(http.MethodGet, "/v1/play_bytes_audio?hash="+clip.Hash, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPlayRoute_ShutdownInterruptsAndRestores(t *testing.T) {
	renderer := newFakeRenderer(t, radioURI, radioMeta, "PLAYING", 30)
	renderer.clipPolls = -1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fixture := newRouteFixtureWithContext(ctx, renderer.device("kitchen", fullRange))

	result := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		result <- fixture.do(http.MethodPost, "/v1/play?url=http://h/endless.mp3&volume=0.5", nil, "")
	}()

	require.Eventually(t, func() bool {
		uri, _, status, _ := renderer.state()
		return uri == "http://h/endless.mp3" && status == "PLAYING"
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	var rec *httptest.ResponseRecorder
	select {
	case rec = <-result:
	case <-time.After(2 * time.Second):
		t.Fatal("play did not return after cancellation")
	}
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "SHUTTING_DOWN")

	uri, meta, status, volume := renderer.state()
	require.Equal(t, radioURI, uri)
	require.Equal(t, radioMeta, meta)
	require.Equal(t, "PLAYING", status)
	require.Equal(t, 30, volume)

	recorded := fixture.recorder.recorded()
	require.Len(t, recorded, 1)
	require.ErrorIs(t, recorded[0].Err, context.Canceled)
}

func TestHostedAudioRoute_HeadAndRange(t *testing.T) {
	fixture := newRouteFixture()
	clip := fixture.store.Put([]byte("0123456789"), "audio/mpeg")
	target := "/v1/play_bytes_audio?hash=" + clip.Hash

	head := fixture.do(http.MethodHead, target, nil, "")
	require.Equal(t, http.StatusOK, head.Code)
	require.Equal(t, "10", head.Header().Get("Content-Length"))
	require.Equal(t, "audio/mpeg", head.Header().Get("Content-Type"))
	require.Equal(t, "bytes", head.Header().Get("Accept-Ranges"))
	require.Empty(t, head.Body.Bytes())

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Range", "bytes=2-4")
	ranged := fixture.serve(req)
	require.Equal(t, http.StatusPartialContent, ranged.Code)
	require.Equal(t, "234", ranged.Body.String())
	require.Equal(t, "bytes 2-4/10", ranged.Header().Get("Content-Range"))
	require.Equal(t, "attachment; filename=audio", ranged.Header().Get("Content-Disposition"))
}
