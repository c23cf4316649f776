package subscription

import (
	"errors"
	"net/http"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/handler/http/pathutil"
	"issuepilot/internal/handler/http/respond"
	"issuepilot/internal/infra/httpclient"
	subUC "issuepilot/internal/usecase/subscription"
)

type TimelineHandler struct{ Svc *subUC.Service }

func (h TimelineHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("repo")
	issueID := r.PathValue("issue")
	if name == "" || issueID == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("repository and issue required"))
		return
	}
	if _, err := pathutil.ParseIssueNumber(issueID); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	typ := entity.RepositoryTypeGitHub
	if s := r.URL.Query().Get("repository_type"); s != "" {
		var err error
		typ, err = entity.ParseRepositoryType(s)
		if err != nil {
			respond.SafeError(w, http.StatusBadRequest, err)
			return
		}
	}

	events, err := h.Svc.GetIssueTimeline(r.Context(), subUC.TimelineInput{
		RepositoryName: name,
		RepositoryType: typ,
		IssueID:        issueID,
		Token:          providerToken(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrNotFound):
			respond.SafeError(w, http.StatusNotFound, err)
		case isValidation(err):
			respond.SafeError(w, http.StatusBadRequest, err)
		case httpclient.IsRateLimit(err):
			respond.SafeError(w, http.StatusTooManyRequests, err)
		default:
			respond.SafeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	respond.JSON(w, http.StatusOK, toTimelineDTO(events))
}
