package api

import (
	"context"
	"easy-chat/domain"
	"easy-chat/mocks"
	"easy-chat/observability"
	"easy-chat/repositories"
	"easy-chat/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	router     http.Handler
	registry   *mocks.MockIRegistry
	repository *mocks.MockIMessageRepository
	monitoring *observability.MonitoringManager
}

func newFixture(t *testing.T, withArchive bool) fixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoringManager(log)
	registry := mocks.NewMockIRegistry(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	repository := mocks.NewMockIMessageRepository(ctrl)

	var repo repositories.IMessageRepository
	if withArchive {
		repo = repository
	}
	service := services.NewChatService(log, registry, broadcaster, repo, monitoring, 20, 500)
	socket := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return fixture{
		router:     NewRouter(log, service, monitoring, socket),
		registry:   registry,
		repository: repository,
		monitoring: monitoring,
	}
}

func (f fixture) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, false)

	rec := f.get("/healthz")
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func TestRouter_Ws_Is_Mounted(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, false)
	req.Equal(http.StatusTeapot, f.get("/ws?username=A").Code)
}

func TestRouter_Stats(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, false)
	joined := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	// Given two users and three logged events
	f.registry.EXPECT().Stats().Return(domain.Stats{
		UserCount:    2,
		MessageCount: 3,
		Users: []domain.UserStats{
			{Username: "A", JoinedAt: joined},
			{Username: "B", JoinedAt: joined},
		},
	}).Times(1)
	f.monitoring.IncrJoins()

	// When stats are requested
	rec := f.get("/stats")

	// Then registry figures and counters are both present
	req.Equal(http.StatusOK, rec.Code)
	var body map[string]any
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.EqualValues(2, body["userCount"])
	req.EqualValues(3, body["messageCount"])
	req.Len(body["users"], 2)
	metrics := body["metrics"].(map[string]any)
	req.EqualValues(1, metrics["joins"])
}

func TestRouter_History_Archive_Disabled(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, false)

	req.Equal(http.StatusNotFound, f.get("/history").Code)
	req.Equal(http.StatusNotFound, f.get("/search?q=hi").Code)
}

func TestRouter_History_Page(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)
	next := "0000000000000000002:id"

	// Given the archive holds a page after the cursor
	f.repository.EXPECT().GetMessages(gomock.Any()).
		DoAndReturn(func(cursor *string) ([]repositories.ArchivedMessage, *string, error) {
			req.NotNil(cursor)
			req.Equal("abc", *cursor)
			return []repositories.ArchivedMessage{{Username: "A", Content: "Hi", Kind: domain.KindMessage}}, &next, nil
		}).Times(1)

	rec := f.get("/history?cursor=abc")

	req.Equal(http.StatusOK, rec.Code)
	var body historyResponse
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Len(body.Messages, 1)
	req.Equal(next, *body.NextCursor)
}

func TestRouter_History_Failure(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)
	f.repository.EXPECT().GetMessages(nil).Return(nil, nil, fmt.Errorf("corrupted")).Times(1)

	req.Equal(http.StatusInternalServerError, f.get("/history").Code)
}

func TestRouter_Search(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)

	f.repository.EXPECT().Search(gomock.Any(), "database", 5).
		DoAndReturn(func(_ context.Context, _ string, _ int) ([]repositories.ArchivedMessage, error) {
			return nil, nil
		}).Times(1)

	rec := f.get("/search?q=database&limit=5")
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"query":"database","messages":[]}`, rec.Body.String())
}

func TestRouter_Search_Bad_Requests(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, true)

	req.Equal(http.StatusBadRequest, f.get("/search").Code)
	req.Equal(http.StatusBadRequest, f.get("/search?q=x&limit=-1").Code)
	req.Equal(http.StatusBadRequest, f.get("/search?q=x&limit=abc").Code)
}
