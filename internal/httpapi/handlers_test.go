package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/catalog"
	"github.com/DoyleJ11/tabletop-backend/internal/narrator"
	"github.com/DoyleJ11/tabletop-backend/internal/room"
)

type fakeRooms struct {
	list []room.Summary
	err  error
}

func (f fakeRooms) List(context.Context) ([]room.Summary, error) { return f.list, f.err }

type fakeCatalog struct {
	err error
}

func (f fakeCatalog) ListClasses(context.Context) ([]catalog.CharacterClass, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []catalog.CharacterClass{{ID: 1, Name: "Fighter", HitDie: 10}}, nil
}

func (f fakeCatalog) ListItems(context.Context) ([]catalog.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []catalog.Item{{ID: 7, Name: "Rope", Type: "gear"}}, nil
}

func newTestRouter(d Deps) http.Handler {
	if d.Rooms == nil {
		d.Rooms = fakeRooms{}
	}
	if d.Narrator == nil {
		d.Narrator = narrator.New(nil, time.Second, zap.NewNop())
	}
	if d.Socket == nil {
		d.Socket = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	}
	return SetupRoutes(d)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealthz(t *testing.T) {
	rec, body := do(t, newTestRouter(Deps{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestSocketRouteIsMounted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	newTestRouter(Deps{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestListRooms(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := newTestRouter(Deps{Rooms: fakeRooms{list: []room.Summary{
		{ID: "ABCD-2345", Name: "Aria's Game", PlayerCount: 2, CurrentPlayer: "Aria", CreatedAt: created},
	}}})

	rec, body := do(t, h, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rooms, ok := body["rooms"].([]any)
	require.True(t, ok)
	require.Len(t, rooms, 1)
	first := rooms[0].(map[string]any)
	assert.Equal(t, "ABCD-2345", first["id"])
	assert.Equal(t, "Aria's Game", first["name"])
	assert.EqualValues(t, 2, first["playerCount"])
	assert.Equal(t, "Aria", first["currentPlayer"])
}

func TestListRoomsEmptyIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(Deps{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	assert.JSONEq(t, `{"rooms": []}`, rec.Body.String())
}

func TestListRoomsError(t *testing.T) {
	h := newTestRouter(Deps{Rooms: fakeRooms{err: errors.New("closed")}})
	rec, _ := do(t, h, http.MethodGet, "/api/rooms", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCatalog(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newTestRouter(Deps{})
		for _, p := range []string{"/api/classes", "/api/items"} {
			rec, _ := do(t, h, http.MethodGet, p, "")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, p)
		}
	})

	t.Run("lists", func(t *testing.T) {
		h := newTestRouter(Deps{Catalog: fakeCatalog{}})

		rec, body := do(t, h, http.MethodGet, "/api/classes", "")
		require.Equal(t, http.StatusOK, rec.Code)
		classes := body["classes"].([]any)
		require.Len(t, classes, 1)
		assert.Equal(t, "Fighter", classes[0].(map[string]any)["name"])
		assert.EqualValues(t, 10, classes[0].(map[string]any)["hit_die"])

		rec, body = do(t, h, http.MethodGet, "/api/items", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["items"], 1)
	})

	t.Run("store error", func(t *testing.T) {
		h := newTestRouter(Deps{Catalog: fakeCatalog{err: errors.New("conn refused")}})
		rec, body := do(t, h, http.MethodGet, "/api/classes", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to fetch classes", body["error"])

		rec, body = do(t, h, http.MethodGet, "/api/items", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to fetch items", body["error"])
	})
}

func TestNarrative(t *testing.T) {
	cases := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		key        string
		want       string
	}{
		{"area ok", "/api/narrative/area-description", `{"areaName": "Crypt", "context": {"lighting": "none"}}`, 200, "description", "Crypt"},
		{"area missing name", "/api/narrative/area-description", `{"context": {}}`, 400, "error", "Area name is required"},
		{"npc ok", "/api/narrative/npc-dialogue", `{"npcName": "Mira", "playerMessage": "hi"}`, 200, "dialogue", `Mira: "..."`},
		{"npc missing message", "/api/narrative/npc-dialogue", `{"npcName": "Mira"}`, 400, "error", "NPC name and player message are required"},
		{"combat ok", "/api/narrative/combat-flavor", `{"combatEvent": {"actorName": "Aria", "targetName": "the ghoul", "result": "miss"}}`, 200, "flavor", "Aria's attack goes wide, missing the ghoul."},
		{"combat missing", "/api/narrative/combat-flavor", `{}`, 400, "error", "Combat event is required"},
		{"summary ok", "/api/narrative/session-summary", `{"events": []}`, 200, "summary", "The adventurers faced many challenges and emerged changed."},
		{"summary missing", "/api/narrative/session-summary", `{"highlights": {}}`, 400, "error", "Events array is required"},
		{"quest ok", "/api/narrative/quest-hook", `{"context": {"region": "marsh"}}`, 200, "hook", "A plea for help reaches your ears. Someone needs heroes."},
		{"bad json", "/api/narrative/quest-hook", `{`, 400, "error", "Invalid JSON body"},
	}

	h := newTestRouter(Deps{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, rec.Code)
			got, _ := body[tc.key].(string)
			assert.Contains(t, got, tc.want)
		})
	}
}

func TestNarrativeRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(Deps{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/narrative/quest-hook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newTestRouter(Deps{AllowedOrigins: []string{"localhost:5173", "*.example.com"}})

	cases := []struct {
		origin string
		allow  bool
	}{
		{"http://localhost:5173", true},
		{"https://play.example.com", true},
		{"http://localhost:9999", false},
		{"https://evil.test", false},
		{"not a url", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", tc.origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if tc.allow {
			assert.Equal(t, tc.origin, rec.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), tc.origin)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(Deps{AllowedOrigins: []string{"localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/narrative/quest-hook", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}
