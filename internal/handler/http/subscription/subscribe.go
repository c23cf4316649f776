package subscription

import (
	"encoding/json"
	"errors"
	"net/http"

	"issuepilot/internal/domain/entity"
	"issuepilot/internal/handler/http/respond"
	"issuepilot/internal/infra/httpclient"
	subUC "issuepilot/internal/usecase/subscription"
)

type SubscribeHandler struct{ Svc *subUC.Service }

func (h SubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID         int64  `json:"user_id"`
		Owner          string `json:"owner"`
		Name           string `json:"name"`
		RepositoryType string `json:"repository_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Owner == "" || req.Name == "" {
		respond.SafeError(w, http.StatusBadRequest,
			errors.New("owner and name required"))
		return
	}

	// github が唯一のプロバイダなのでデフォルトにする
	if req.RepositoryType == "" {
		req.RepositoryType = "github"
	}
	typ, err := entity.ParseRepositoryType(req.RepositoryType)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}

	repo, err := h.Svc.Subscribe(r.Context(), subUC.SubscribeInput{
		UserID:         req.UserID,
		Owner:          req.Owner,
		RepositoryName: req.Name,
		RepositoryType: typ,
		Token:          providerToken(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrRepositoryNotFound):
			respond.SafeError(w, http.StatusNotFound, err)
		case isValidation(err):
			respond.SafeError(w, http.StatusBadRequest, err)
		case httpclient.IsRateLimit(err):
			// プロバイダ側のレート制限はこちらの障害ではないので 429 を返す
			respond.SafeError(w, http.StatusTooManyRequests, err)
		default:
			respond.SafeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	respond.JSON(w, http.StatusCreated, toRepositoryDTO(repo))
}

// providerToken reads the caller's provider token from the request.
// An empty token means unauthenticated provider access, which works for
// public repositories at a lower rate limit.
func providerToken(r *http.Request) string {
	return r.Header.Get("X-Provider-Token")
}

func isValidation(err error) bool {
	var vErr *entity.ValidationError
	return errors.As(err, &vErr) || errors.Is(err, entity.ErrInvalidInput)
}
