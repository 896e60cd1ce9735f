package handlers

import (
	"context"
	"net/http"
	"strings"

	"oblik/core/records"

	"github.com/go-chi/chi/v5"
)

type actorKey struct{}

func WithActor(ctx context.Context, actor records.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(r *http.Request) records.Actor {
	actor, _ := r.Context().Value(actorKey{}).(records.Actor)
	return actor
}

func recordID(r *http.Request) string {
	if id := strings.TrimSpace(chi.URLParam(r, "id")); id != "" {
		return id
	}
	// direct handler tests run without a chi route context
	segments := strings.Split(strings.Trim(strings.TrimSpace(r.URL.Path), "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "records" && strings.TrimSpace(segments[i+1]) != "" {
			return segments[i+1]
		}
	}
	return ""
}
