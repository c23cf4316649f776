package subscription

import (
	"errors"
	"net/http"
	"strconv"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/handler/http/respond"
	subUC "issuepilot/internal/usecase/subscription"
)

type UnsubscribeHandler struct{ Svc *subUC.Service }

func (h UnsubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("repo")
	if name == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("repository name required"))
		return
	}

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		respond.SafeError(w, http.StatusBadRequest, errors.New("user_id must be a positive integer"))
		return
	}

	typ := entity.RepositoryTypeGitHub
	if s := r.URL.Query().Get("repository_type"); s != "" {
		typ, err = entity.ParseRepositoryType(s)
		if err != nil {
			respond.SafeError(w, http.StatusBadRequest, err)
			return
		}
	}

	err = h.Svc.Unsubscribe(r.Context(), subUC.UnsubscribeInput{
		UserID:         userID,
		RepositoryName: name,
		RepositoryType: typ,
	})
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrNotFound):
			respond.SafeError(w, http.StatusNotFound, err)
		case isValidation(err):
			respond.SafeError(w, http.StatusBadRequest, err)
		default:
			respond.SafeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
