package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alejandrodnm/battlewager/internal/adapters/httpapi"
	"github.com/alejandrodnm/battlewager/internal/adapters/storage"
	"github.com/alejandrodnm/battlewager/internal/application/settlement"
	"github.com/alejandrodnm/battlewager/internal/application/tracker"
	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv *httpapi.Server
	db  *storage.SQLiteStorage
}

func newFixture(t *testing.T, cfg httpapi.Config) fixture {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := settlement.New(db, settlement.DefaultConfig())
	srv := httpapi.New(cfg, engine, tracker.New(db), db)
	return fixture{srv: srv, db: db}
}

func (f fixture) do(t *testing.T, method, path, operator string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if operator != "" {
		req.Header.Set(httpapi.OperatorHeader, operator)
	}

	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (f fixture) createDuel(t *testing.T) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/battles", "coach", map[string]any{
		"title":             "Wall balls",
		"mode":              "duel",
		"participant_ids":   []string{"ana", "bo"},
		"repetition_target": 2,
		"points_per_rep":    5,
	})
	require.Equal(t, http.StatusCreated, status, body)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "coach", body["created_by"])
	assert.Equal(t, "wall-balls", body["slug"])
	return id
}

func (f fixture) logRep(t *testing.T, battleID, who string, ok bool) int {
	t.Helper()
	status, _ := f.do(t, http.MethodPost, "/battles/"+battleID+"/attempts", "coach",
		map[string]any{"participant_id": who, "success": ok})
	return status
}

func TestServer_FullFlow(t *testing.T) {
	f := newFixture(t, httpapi.Config{})
	require.NoError(t, f.db.GrantPoints(context.Background(), domain.LedgerEntry{ID: "seed", ParticipantID: "bo", Points: 40}))

	id := f.createDuel(t)
	for _, r := range []struct {
		who string
		ok  bool
	}{{"ana", true}, {"ana", true}, {"bo", false}} {
		require.Equal(t, http.StatusCreated, f.logRep(t, id, r.who, r.ok))
	}

	status, body := f.do(t, http.MethodPost, "/battles/"+id+"/settle", "coach", nil)
	assert.Equal(t, http.StatusConflict, status, "bo is one rep short")
	assert.Contains(t, body["error"], "incomplete")

	require.Equal(t, http.StatusCreated, f.logRep(t, id, "bo", false))

	status, body = f.do(t, http.MethodGet, "/battles/"+id+"/preview", "coach", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["complete"])
	assert.Equal(t, []any{"ana"}, body["winners"])
	assert.Equal(t, map[string]any{"ana": float64(10), "bo": float64(-10)}, body["deltas"])

	status, body = f.do(t, http.MethodPost, "/battles/"+id+"/settle", "coach", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["settled"])
	assert.Equal(t, false, body["already_settled"])

	status, body = f.do(t, http.MethodPost, "/battles/"+id+"/settle", "coach", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["already_settled"])

	status, body = f.do(t, http.MethodGet, "/participants/bo/balance", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(30), body["points"])

	status, body = f.do(t, http.MethodGet, "/battles/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ana", body["winner_id"])
	assert.NotNil(t, body["settled_at"])

	assert.Equal(t, http.StatusConflict, f.logRep(t, id, "bo", true), "settled battles accept no reps")
}

func TestServer_RateLimitedPreviewShowsNoMovement(t *testing.T) {
	f := newFixture(t, httpapi.Config{})
	ctx := context.Background()
	require.NoError(t, f.db.GrantPoints(ctx, domain.LedgerEntry{ID: "seed", ParticipantID: "bo", Points: 40}))

	farm := f.createDuel(t)
	for i := 0; i < 19; i++ {
		_, err := f.db.AppendAttempt(ctx, domain.AttemptEvent{
			BattleID: farm, ParticipantID: "ana", Success: true,
			OccurredAt: time.Now().UTC().Add(-time.Hour), LoggedBy: "coach",
		})
		require.NoError(t, err)
	}

	id := f.createDuel(t)
	for _, r := range []struct {
		who string
		ok  bool
	}{{"ana", true}, {"ana", true}, {"bo", false}, {"bo", false}} {
		require.Equal(t, http.StatusCreated, f.logRep(t, id, r.who, r.ok))
	}

	status, body := f.do(t, http.MethodGet, "/battles/"+id+"/preview", "coach", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["rate_limited"])
	assert.Equal(t, map[string]any{"ana": float64(0), "bo": float64(0)}, body["deltas"])
	assert.Equal(t, map[string]any{"ana": float64(10), "bo": float64(-10)}, body["would_move"])

	status, body = f.do(t, http.MethodPost, "/battles/"+id+"/settle", "coach", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["rate_limited"])

	status, body = f.do(t, http.MethodGet, "/participants/bo/balance", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(40), body["points"])
}

func TestServer_Errors(t *testing.T) {
	f := newFixture(t, httpapi.Config{})
	id := f.createDuel(t)

	status, _ := f.do(t, http.MethodGet, "/battles/nope/preview", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/battles/nope/settle", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	assert.Equal(t, http.StatusBadRequest, f.logRep(t, id, "zed", true))

	status, _ = f.do(t, http.MethodPost, "/battles/"+id+"/attempts", "coach", map[string]any{"participant_id": "ana"})
	assert.Equal(t, http.StatusBadRequest, status, "success is required")

	status, _ = f.do(t, http.MethodPost, "/battles", "coach", map[string]any{"mode": "duel", "participant_ids": []string{"solo"}, "repetition_target": 1})
	assert.Equal(t, http.StatusBadRequest, status)
}

type brokenSettler struct{}

func (brokenSettler) Settle(context.Context, string, string) (*settlement.SettleResult, error) {
	return nil, fmt.Errorf("settlement.Settle: %w: disk I/O error", domain.ErrStorage)
}

func (brokenSettler) Preview(context.Context, string, string) (*settlement.PreviewResult, error) {
	return nil, fmt.Errorf("settlement.Preview: %w: disk I/O error", domain.ErrStorage)
}

func TestServer_StorageErrorIsOpaque500(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	f := fixture{srv: httpapi.New(httpapi.Config{}, brokenSettler{}, tracker.New(db), db), db: db}
	status, body := f.do(t, http.MethodPost, "/battles/b1/settle", "coach", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", body["error"])
}

func TestServer_ThrottlesPerOperator(t *testing.T) {
	f := newFixture(t, httpapi.Config{RequestsPerMinute: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		status, _ := f.do(t, http.MethodGet, "/participants/ana/balance", "coach", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, _ := f.do(t, http.MethodGet, "/participants/ana/balance", "coach", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = f.do(t, http.MethodGet, "/participants/ana/balance", "intern", nil)
	assert.Equal(t, http.StatusOK, status, "buckets are per operator")

	status, _ = f.do(t, http.MethodGet, "/healthz", "coach", nil)
	assert.Equal(t, http.StatusOK, status)
}
