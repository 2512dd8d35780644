package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/catalog"
	"github.com/DoyleJ11/tabletop-backend/internal/narrator"
)

const maxBodyBytes = 64 << 10

type roomInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PlayerCount   int       `json:"playerCount"`
	CurrentPlayer string    `json:"currentPlayer,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a JSON body into v. On failure it answers 400 and
// returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ListRooms(rooms RoomLister, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := rooms.List(r.Context())
		if err != nil {
			logger.Warn("list rooms", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "Failed to fetch rooms")
			return
		}

		out := make([]roomInfo, 0, len(summaries))
		for _, s := range summaries {
			out = append(out, roomInfo{
				ID:            s.ID,
				Name:          s.Name,
				PlayerCount:   s.PlayerCount,
				CurrentPlayer: s.CurrentPlayer,
				CreatedAt:     s.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
	}
}

func ListClasses(store catalog.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "Catalog unavailable")
			return
		}
		classes, err := store.ListClasses(r.Context())
		if err != nil {
			logger.Error("catalog query", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to fetch classes")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"classes": classes})
	}
}

func ListItems(store catalog.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "Catalog unavailable")
			return
		}
		items, err := store.ListItems(r.Context())
		if err != nil {
			logger.Error("catalog query", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to fetch items")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func AreaDescription(n Narrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AreaName string               `json:"areaName"`
			Context  narrator.AreaContext `json:"context"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.AreaName) == "" {
			writeError(w, http.StatusBadRequest, "Area name is required")
			return
		}
		text := n.AreaDescription(r.Context(), req.AreaName, req.Context)
		writeJSON(w, http.StatusOK, map[string]string{"description": text})
	}
}

func NPCDialogue(n Narrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			NPCName       string              `json:"npcName"`
			PlayerMessage string              `json:"playerMessage"`
			NPCContext    narrator.NPCContext `json:"npcContext"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.NPCName) == "" || strings.TrimSpace(req.PlayerMessage) == "" {
			writeError(w, http.StatusBadRequest, "NPC name and player message are required")
			return
		}
		text := n.NPCDialogue(r.Context(), req.NPCName, req.PlayerMessage, req.NPCContext)
		writeJSON(w, http.StatusOK, map[string]string{"dialogue": text})
	}
}

func CombatFlavor(n Narrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CombatEvent *narrator.CombatEvent `json:"combatEvent"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.CombatEvent == nil {
			writeError(w, http.StatusBadRequest, "Combat event is required")
			return
		}
		text := n.CombatFlavor(r.Context(), *req.CombatEvent)
		writeJSON(w, http.StatusOK, map[string]string{"flavor": text})
	}
}

func SessionSummary(n Narrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Events     []string          `json:"events"`
			Highlights map[string]string `json:"highlights"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Events == nil {
			writeError(w, http.StatusBadRequest, "Events array is required")
			return
		}
		text := n.SessionSummary(r.Context(), req.Events, req.Highlights)
		writeJSON(w, http.StatusOK, map[string]string{"summary": text})
	}
}

func QuestHook(n Narrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Context   narrator.QuestContext `json:"context"`
			QuestType string                `json:"questType"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		text := n.QuestHook(r.Context(), req.Context, req.QuestType)
		writeJSON(w, http.StatusOK, map[string]string{"hook": text})
	}
}
