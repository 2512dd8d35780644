package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/catalog"
	"github.com/DoyleJ11/tabletop-backend/internal/narrator"
	"github.com/DoyleJ11/tabletop-backend/internal/room"
)

type RoomLister interface {
	List(ctx context.Context) ([]room.Summary, error)
}

type Narrator interface {
	AreaDescription(ctx context.Context, areaName string, c narrator.AreaContext) string
	NPCDialogue(ctx context.Context, npcName, playerMessage string, c narrator.NPCContext) string
	CombatFlavor(ctx context.Context, e narrator.CombatEvent) string
	SessionSummary(ctx context.Context, events []string, highlights map[string]string) string
	QuestHook(ctx context.Context, c narrator.QuestContext, questType string) string
}

type Deps struct {
	Rooms    RoomLister
	Socket   http.Handler
	Narrator Narrator
	// Catalog may be nil, in which case the catalog endpoints answer 503.
	Catalog        catalog.Store
	Logger         *zap.Logger
	AllowedOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(d.AllowedOrigins))

	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/ws", d.Socket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", ListRooms(d.Rooms, d.Logger))
		r.Get("/classes", ListClasses(d.Catalog, d.Logger))
		r.Get("/items", ListItems(d.Catalog, d.Logger))

		r.Route("/narrative", func(r chi.Router) {
			r.Post("/area-description", AreaDescription(d.Narrator))
			r.Post("/npc-dialogue", NPCDialogue(d.Narrator))
			r.Post("/combat-flavor", CombatFlavor(d.Narrator))
			r.Post("/session-summary", SessionSummary(d.Narrator))
			r.Post("/quest-hook", QuestHook(d.Narrator))
		})
	})
	return r
}
