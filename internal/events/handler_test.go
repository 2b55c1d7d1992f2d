package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidchain/pkg/domain"
	audit "aidchain/pkg/platform/audit"
	auditmemory "aidchain/pkg/platform/audit/store/memory"
)

func newRouter(t *testing.T) (chi.Router, *audit.Publisher) {
	t.Helper()
	publisher := audit.NewPublisher(auditmemory.NewInMemoryStore())
	r := chi.NewRouter()
	New(publisher, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, publisher
}

func get(t *testing.T, r chi.Router, path string) (int, listResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var resp listResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestListEvents(t *testing.T) {
	r, publisher := newRouter(t)
	ctx := context.Background()
	u0, u1 := domain.UnitID(0), domain.UnitID(1)
	require.NoError(t, publisher.Emit(ctx, audit.Event{Kind: audit.KindUnitIssued, UnitID: &u0, Actor: "d1"}))
	require.NoError(t, publisher.Emit(ctx, audit.Event{Kind: audit.KindUnitIssued, UnitID: &u1, Actor: "d1"}))
	require.NoError(t, publisher.Emit(ctx, audit.Event{Kind: audit.KindCustodyInitialized, UnitID: &u0, Actor: "x"}))

	code, resp := get(t, r, "/events")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Events, 3)

	code, resp = get(t, r, "/events?unit_id=0")
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "custody_initialized", resp.Events[1].Kind)
	assert.Equal(t, "custody", resp.Events[1].Category)

	code, resp = get(t, r, "/events?limit=1")
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "custody_initialized", resp.Events[0].Kind, "the most recent events are kept")

	code, _ = get(t, r, "/events?limit=0")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = get(t, r, "/events?unit_id=-1")
	assert.Equal(t, http.StatusBadRequest, code)
}
