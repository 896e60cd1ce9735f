package routegroups

import (
	"net/http"

	"oblik/api/handlers"

	"github.com/go-chi/chi/v5"
)

type Guards struct {
	WithActor func(http.HandlerFunc) http.HandlerFunc
}

func RegisterRecords(apiRouter chi.Router, g Guards, records *handlers.RecordsHandler) {
	apiRouter.Route("/records", func(recordsRouter chi.Router) {
		recordsRouter.MethodFunc("POST", "/", g.WithActor(records.Create))
		recordsRouter.MethodFunc("POST", "/import", g.WithActor(records.Import))
		recordsRouter.MethodFunc("GET", "/{id}", g.WithActor(records.Get))
		recordsRouter.MethodFunc("PUT", "/{id}", g.WithActor(records.Update))
		recordsRouter.MethodFunc("DELETE", "/{id}", g.WithActor(records.Delete))
		recordsRouter.MethodFunc("GET", "/{id}/audit", g.WithActor(records.Audit))
		recordsRouter.MethodFunc("POST", "/{id}/resolution", g.WithActor(records.SubmitResolution))
		recordsRouter.MethodFunc("POST", "/{id}/approve", g.WithActor(records.Approve))
		recordsRouter.MethodFunc("POST", "/{id}/extension", g.WithActor(records.RequestExtension))
		recordsRouter.MethodFunc("POST", "/{id}/extension/review", g.WithActor(records.ReviewExtension))
		recordsRouter.MethodFunc("POST", "/{id}/investigation", g.WithActor(records.Investigation))
		recordsRouter.MethodFunc("POST", "/{id}/return", g.WithActor(records.ReturnForRevision))
	})
}
