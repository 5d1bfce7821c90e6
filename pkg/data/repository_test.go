package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/savid/radio-schedule/pkg/schedule"
)

var (
	testNow  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
)

// fakeAPI serves channel and schedule documents and records every request.
type fakeAPI struct {
	*httptest.Server

	mu         sync.Mutex
	requests   []string
	failing    map[string]bool // channel ids whose schedule answers 500
	listStatus int             // status override for the channel list, 0 = 200
}

func newFakeAPI(t *testing.T) *fakeAPI {
	api := &fakeAPI{failing: map[string]bool{}}
	api.Server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests = append(a.requests, r.URL.RequestURI())
	failing := a.failing[r.URL.Query().Get("channelid")]
	listStatus := a.listStatus
	a.mu.Unlock()

	host := "http://" + r.Host
	channel := func(id, name string) string {
		return fmt.Sprintf(`<channel id="%s" name="%s"><scheduleurl>%s/v2/scheduledepisodes?channelid=%s</scheduleurl></channel>`,
			id, name, host, id)
	}

	switch {
	case r.URL.Path == "/v2/channels/":
		if listStatus != 0 {
			w.WriteHeader(listStatus)
			return
		}
		_, _ = fmt.Fprintf(w, `<?xml version="1.0"?><sr><channels>%s%s%s<channel id="2576" name="Din gata"/></channels></sr>`,
			channel("132", "P1"), channel("163", "P2"), channel("4868", "P4 Plus"))
	case strings.HasPrefix(r.URL.Path, "/v2/channels/"):
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v2/channels/"), "/")
		_, _ = fmt.Fprintf(w, `<?xml version="1.0"?><sr>%s</sr>`, channel(id, "Channel "+id))
	case r.URL.Path == "/v2/scheduledepisodes":
		if failing {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		id := r.URL.Query().Get("channelid")
		_, _ = fmt.Fprintf(w, `<?xml version="1.0"?><sr><schedule>`+
			`<scheduledepisode><title>show %s</title><starttimeutc>2024-05-01T10:00:00Z</starttimeutc>`+
			`<endtimeutc>2024-05-01T11:00:00Z</endtimeutc><channel id="%s" name="ch%s"/></scheduledepisode>`+
			`<scheduledepisode><title>old %s</title><starttimeutc>2024-04-29T10:00:00Z</starttimeutc>`+
			`<endtimeutc>2024-04-29T11:00:00Z</endtimeutc><channel id="%s" name="ch%s"/></scheduledepisode>`+
			`</schedule></sr>`, id, id, id, id, id, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *fakeAPI) Requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.requests...)
}

func (a *fakeAPI) scheduleRequests() []string {
	var out []string
	for _, req := range a.Requests() {
		if strings.HasPrefix(req, "/v2/scheduledepisodes") {
			out = append(out, req)
		}
	}
	return out
}

func newTestRepository(api *fakeAPI) *Repository {
	logger := testLogger()
	return NewRepository(
		api.URL+"/v2",
		NewFetcher(5*time.Second, "", logger),
		schedule.NewParser(time.UTC, logger),
		logger,
		WithClock(func() time.Time { return testNow }),
	)
}

func TestRepositoryRefresh(t *testing.T) {
	api := newFakeAPI(t)
	repo := newTestRepository(api)

	if err := repo.Refresh(context.Background(), AllChannels, testDate); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	channels := repo.Channels()
	if len(channels) != 3 {
		t.Fatalf("Expected 3 channels (4868 excluded), got %+v", channels)
	}

	// 2 schedulable channels x 3 days, one in-window episode per document
	episodes := repo.Episodes()
	if len(episodes) != 6 {
		t.Fatalf("Expected 6 episodes, got %d: %+v", len(episodes), episodes)
	}
	for i, want := range []string{"show 132", "show 132", "show 132", "show 163", "show 163", "show 163"} {
		if episodes[i].Title != want {
			t.Errorf("Episode %d title = %q, want %q", i, episodes[i].Title, want)
		}
	}
	if !episodes[0].Equal(episodes[1]) {
		t.Error("Identical episodes from different documents must both be kept")
	}

	if repo.HasError() || repo.ErrorMessage() != "" {
		t.Errorf("Unexpected error state: %q", repo.ErrorMessage())
	}

	snap := repo.Snapshot()
	if snap.CycleID == "" || !snap.RefreshedAt.Equal(testNow) || !snap.ReferenceDate.Equal(testDate) {
		t.Errorf("Unexpected snapshot metadata: %+v", snap)
	}
}

func TestRepositoryScheduleDates(t *testing.T) {
	api := newFakeAPI(t)
	repo := newTestRepository(api)

	if err := repo.Refresh(context.Background(), AllChannels, testDate); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	requests := api.scheduleRequests()
	if len(requests) != 6 {
		t.Fatalf("Expected 6 schedule requests, got %v", requests)
	}

	wantDates := []string{"2024-04-30", "2024-05-01", "2024-05-02"}
	for i, req := range requests {
		wantChannel := "channelid=132"
		if i >= 3 {
			wantChannel = "channelid=163"
		}
		if !strings.Contains(req, wantChannel) || !strings.Contains(req, "date="+wantDates[i%3]) {
			t.Errorf("Request %d = %q, want %s and date %s", i, req, wantChannel, wantDates[i%3])
		}
		if strings.Contains(req, "channelid="+schedule.ExcludedChannelID) {
			t.Errorf("Excluded channel must never be fetched: %q", req)
		}
	}
}

func TestRepositoryChannelEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		channelID string
		wantPath  string
	}{
		{name: "all channels", channelID: AllChannels, wantPath: "/v2/channels/?pagination=false&size=1000"},
		{name: "single channel", channelID: "164", wantPath: "/v2/channels/164/?pagination=false&size=1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t)
			repo := newTestRepository(api)

			if err := repo.RefreshChannels(context.Background(), tt.channelID); err != nil {
				t.Fatalf("RefreshChannels failed: %v", err)
			}

			requests := api.Requests()
			if len(requests) != 1 || requests[0] != tt.wantPath {
				t.Errorf("Expected single request %q, got %v", tt.wantPath, requests)
			}
		})
	}
}

func TestRepositorySingleChannelRefresh(t *testing.T) {
	api := newFakeAPI(t)
	repo := newTestRepository(api)

	if err := repo.Refresh(context.Background(), AllChannels, testDate); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if err := repo.Refresh(context.Background(), "164", testDate); err != nil {
		t.Fatalf("Refresh of 164 failed: %v", err)
	}

	channels := repo.Channels()
	if len(channels) != 1 || channels[0].ID != "164" {
		t.Fatalf("Expected only channel 164, got %+v", channels)
	}
	for _, ep := range repo.Episodes() {
		if ep.ChannelName != "ch164" {
			t.Errorf("Stale episode from %q survived a directed refresh", ep.ChannelName)
		}
	}
	if len(repo.Episodes()) != 3 {
		t.Errorf("Expected 3 episodes for channel 164, got %d", len(repo.Episodes()))
	}
}

func TestRepositoryPartialFailure(t *testing.T) {
	api := newFakeAPI(t)
	api.failing["163"] = true
	repo := newTestRepository(api)

	err := repo.Refresh(context.Background(), AllChannels, testDate)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("Expected aggregated ErrUnexpectedStatus, got %v", err)
	}

	episodes := repo.Episodes()
	if len(episodes) != 3 {
		t.Fatalf("Expected the 3 episodes of channel 132, got %d", len(episodes))
	}
	for _, ep := range episodes {
		if ep.ChannelName != "ch132" {
			t.Errorf("Unexpected episode from %q", ep.ChannelName)
		}
	}

	if !repo.HasError() {
		t.Error("Error flag should be set")
	}
	msg := repo.ErrorMessage()
	if msg == "" || !strings.Contains(msg, "P2 (163)") {
		t.Errorf("Expected error message naming channel 163, got %q", msg)
	}
	if n := len(repo.Snapshot().Errors); n != 3 {
		t.Errorf("Expected one error per failed date, got %d", n)
	}
}

func TestRepositoryChannelListFailureKeepsStaleData(t *testing.T) {
	api := newFakeAPI(t)
	repo := newTestRepository(api)

	if err := repo.Refresh(context.Background(), AllChannels, testDate); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	api.mu.Lock()
	api.listStatus = http.StatusBadGateway
	api.mu.Unlock()

	if err := repo.Refresh(context.Background(), AllChannels, testDate); err == nil {
		t.Fatal("Expected an error when the channel list is unavailable")
	}
	if len(repo.Channels()) != 3 || len(repo.Episodes()) != 6 {
		t.Errorf("Expected stale data to be kept, got %d channels, %d episodes",
			len(repo.Channels()), len(repo.Episodes()))
	}
	if !repo.HasError() {
		t.Error("Error flag should be set")
	}
}

func TestRepositoryErrorStateResetsPerCycle(t *testing.T) {
	api := newFakeAPI(t)
	api.failing["132"] = true
	repo := newTestRepository(api)

	_ = repo.Refresh(context.Background(), AllChannels, testDate)
	if !repo.HasError() {
		t.Fatal("Error flag should be set after a failing cycle")
	}

	api.mu.Lock()
	api.failing = map[string]bool{}
	api.mu.Unlock()

	if err := repo.Refresh(context.Background(), AllChannels, testDate); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if repo.HasError() {
		t.Errorf("A clean cycle should clear error state, got %q", repo.ErrorMessage())
	}
}

func TestRepositoryStepsAccumulateErrors(t *testing.T) {
	api := newFakeAPI(t)
	api.failing["132"] = true
	repo := newTestRepository(api)

	if err := repo.RefreshChannels(context.Background(), AllChannels); err != nil {
		t.Fatalf("RefreshChannels failed: %v", err)
	}
	if err := repo.RefreshEpisodes(context.Background(), testDate); err == nil {
		t.Fatal("Expected RefreshEpisodes to report the failing channel")
	}
	if err := repo.RefreshEpisodes(context.Background(), testDate); err == nil {
		t.Fatal("Expected RefreshEpisodes to report the failing channel")
	}

	if n := len(repo.Snapshot().Errors); n != 6 {
		t.Errorf("Expected errors of both calls to accumulate (6), got %d", n)
	}
	if len(repo.Episodes()) != 3 {
		t.Errorf("Episode list should be replaced, not appended: got %d", len(repo.Episodes()))
	}
}

func TestRepositoryReset(t *testing.T) {
	api := newFakeAPI(t)
	repo := newTestRepository(api)

	if err := repo.Refresh(context.Background(), AllChannels, testDate); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	repo.Reset()

	if len(repo.Channels()) != 0 {
		t.Errorf("Expected no channels after reset, got %d", len(repo.Channels()))
	}
	if len(repo.Episodes()) != 0 {
		t.Errorf("Expected no episodes after reset, got %d", len(repo.Episodes()))
	}
	if n := len(api.Requests()); n != 7 {
		t.Errorf("Reset must not fetch anything, saw %d requests", n)
	}
}

// cancellingFetcher cancels the cycle on its second call.
type cancellingFetcher struct {
	inner  DocumentFetcher
	cancel context.CancelFunc
	calls  int
}

func (f *cancellingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	f.calls++
	if f.calls == 2 {
		f.cancel()
		return nil, ctx.Err()
	}
	return f.inner.Fetch(ctx, rawURL)
}

func TestRepositoryCancelledCyclePublishesNothing(t *testing.T) {
	api := newFakeAPI(t)
	logger := testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &cancellingFetcher{inner: NewFetcher(5*time.Second, "", logger), cancel: cancel}
	repo := NewRepository(api.URL+"/v2", fetcher, schedule.NewParser(time.UTC, logger), logger,
		WithClock(func() time.Time { return testNow }))

	before := repo.Snapshot()
	err := repo.Refresh(ctx, AllChannels, testDate)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if repo.Snapshot() != before {
		t.Error("A cancelled cycle must not publish a snapshot")
	}
}

func TestThreeDays(t *testing.T) {
	days := ThreeDays(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	want := []string{"2024-02-29", "2024-03-01", "2024-03-02"}
	for i, day := range days {
		if got := day.Format("2006-01-02"); got != want[i] {
			t.Errorf("Day %d = %s, want %s", i, got, want[i])
		}
	}
}
