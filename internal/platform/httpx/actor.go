package httpx

import (
	"net/http"

	"github.com/buildledger/buildledger/internal/shared"
)

// ActorOrReject extracts the authenticated actor from the request context,
// writing a 401 response when absent. Handlers then pass the actor to the
// service layer explicitly.
func ActorOrReject(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || !actor.Valid() {
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return shared.Actor{}, false
	}
	return actor, true
}
