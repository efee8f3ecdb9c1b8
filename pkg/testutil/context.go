package testutil

import (
	"net/http"

	id "ownergraph/pkg/domain"
	"ownergraph/pkg/requestcontext"
)

// WithActor adds an actor to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actor id.ActorID) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), actor))
}
