package subscription

import (
	"net/http"

	subUC "issuepilot/internal/usecase/subscription"
)

// Register registers all subscription-related HTTP handlers with the given mux.
// It sets up routes for subscribing, unsubscribing, and reading issue timelines.
func Register(mux *http.ServeMux, svc *subUC.Service) {
	mux.Handle("POST   /subscriptions", SubscribeHandler{svc})
	mux.Handle("DELETE /subscriptions/{repo}", UnsubscribeHandler{svc})
	mux.Handle("GET    /repositories/{repo}/issues/{issue}/timeline", TimelineHandler{svc})
}
