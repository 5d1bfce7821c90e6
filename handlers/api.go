// Package handlers exposes the schedule snapshot and refresh controls over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/savid/radio-schedule/pkg/data"
	"github.com/savid/radio-schedule/pkg/schedule"
	"github.com/sirupsen/logrus"
)

// SnapshotReader gives access to the latest published snapshot.
type SnapshotReader interface {
	Snapshot() *data.Snapshot
}

// RefreshTrigger requests refresh cycles and controls their period.
type RefreshTrigger interface {
	Trigger(channelID string)
	TriggerPeriodicRefresh(intervalSeconds int) error
	Interval() time.Duration
	Running() bool
}

// API serves the schedule over JSON.
type API struct {
	reader  SnapshotReader
	trigger RefreshTrigger
	logger  *logrus.Logger
}

// Status describes the current snapshot and scheduler.
type Status struct {
	CycleID         string    `json:"cycleId"`
	ChannelID       string    `json:"channelId"`
	RefreshedAt     time.Time `json:"refreshedAt"`
	Channels        int       `json:"channels"`
	Episodes        int       `json:"episodes"`
	HasError        bool      `json:"hasError"`
	ErrorMessage    string    `json:"errorMessage"`
	Running         bool      `json:"running"`
	IntervalSeconds int       `json:"intervalSeconds"`
}

type refreshResponse struct {
	Status  string `json:"status"`
	Channel string `json:"channel"`
}

// NewAPI creates a new API handler instance.
func NewAPI(reader SnapshotReader, trigger RefreshTrigger, logger *logrus.Logger) *API {
	return &API{
		reader:  reader,
		trigger: trigger,
		logger:  logger,
	}
}

// Router returns the API routes wrapped in request logging.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(a.logger))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/channels", a.getChannels).Methods(http.MethodGet)
	api.HandleFunc("/episodes", a.getEpisodes).Methods(http.MethodGet)
	api.HandleFunc("/status", a.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/refresh", a.refresh).Methods(http.MethodPost)
	api.HandleFunc("/refresh/{id}", a.refresh).Methods(http.MethodPost)
	api.HandleFunc("/interval", a.setInterval).Methods(http.MethodPut)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

func (a *API) getChannels(w http.ResponseWriter, _ *http.Request) {
	channels := a.reader.Snapshot().Channels
	if channels == nil {
		channels = []schedule.Channel{}
	}
	a.writeJSON(w, http.StatusOK, channels)
}

func (a *API) getEpisodes(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("channel")

	snap := a.reader.Snapshot()

	episodes := make([]schedule.Episode, 0, len(snap.Episodes))
	for _, ep := range snap.Episodes {
		if name == "" || ep.ChannelName == name {
			episodes = append(episodes, ep)
		}
	}
	a.writeJSON(w, http.StatusOK, episodes)
}

func (a *API) getStatus(w http.ResponseWriter, _ *http.Request) {
	snap := a.reader.Snapshot()
	a.writeJSON(w, http.StatusOK, Status{
		CycleID:         snap.CycleID,
		ChannelID:       snap.ChannelID,
		RefreshedAt:     snap.RefreshedAt,
		Channels:        len(snap.Channels),
		Episodes:        len(snap.Episodes),
		HasError:        snap.HasError(),
		ErrorMessage:    snap.ErrorMessage(),
		Running:         a.trigger.Running(),
		IntervalSeconds: int(a.trigger.Interval() / time.Second),
	})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["id"]
	a.trigger.Trigger(channelID)

	a.logger.WithField("channel", channelID).Info("Refresh requested")
	a.writeJSON(w, http.StatusAccepted, refreshResponse{Status: "queued", Channel: channelID})
}

func (a *API) setInterval(w http.ResponseWriter, r *http.Request) {
	seconds, err := strconv.Atoi(r.URL.Query().Get("seconds"))
	if err != nil {
		http.Error(w, "seconds must be an integer", http.StatusBadRequest)
		return
	}

	if err := a.trigger.TriggerPeriodicRefresh(seconds); err != nil {
		if errors.Is(err, data.ErrInvalidInterval) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.logger.WithError(err).Error("Failed to change refresh interval")
		http.Error(w, "failed to change refresh interval", http.StatusInternalServerError)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]int{"intervalSeconds": seconds})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.WithError(err).Error("Failed to encode response")
	}
}
