// Package collect exposes the contributor-facing journey: landing on a
// collection link, finding yourself in the guest list, filling in a recipe,
// and submitting it.
package collect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smallplates/collect/internal/auth"
	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/draft"
	mw "github.com/smallplates/collect/internal/http/middleware"
	"github.com/smallplates/collect/internal/http/response"
	"github.com/smallplates/collect/internal/journey"
	"github.com/smallplates/collect/internal/service"
	"github.com/smallplates/collect/internal/session"
	"github.com/smallplates/collect/pkg/logger"
)

type Handler struct {
	Validator     *service.TokenValidator
	Matcher       *service.GuestMatcher
	Pipeline      *service.SubmissionPipeline
	Notifications *service.NotificationPreference
	Sessions      *session.Manager
	Drafts        *draft.Saver
	SessionSecret string
	SessionTTL    time.Duration
}

func NewHandler(
	validator *service.TokenValidator,
	matcher *service.GuestMatcher,
	pipeline *service.SubmissionPipeline,
	notifications *service.NotificationPreference,
	sessions *session.Manager,
	drafts *draft.Saver,
	sessionSecret string,
	sessionTTL time.Duration,
) *Handler {
	return &Handler{
		Validator:     validator,
		Matcher:       matcher,
		Pipeline:      pipeline,
		Notifications: notifications,
		Sessions:      sessions,
		Drafts:        drafts,
		SessionSecret: sessionSecret,
		SessionTTL:    sessionTTL,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{token}", h.land)

	r.Group(func(pr chi.Router) {
		pr.Use(mw.RequireVisitorSession(h.SessionSecret))
		pr.Post("/{token}/search", h.search)
		pr.Post("/{token}/identity", h.identity)
		pr.Get("/{token}/journey", h.journeyState)
		pr.Post("/{token}/journey/events", h.journeyEvent)
		pr.Post("/{token}/journey/paste", h.pasteSubmit)
		pr.Post("/{token}/journey/submit", h.submit)
		pr.Post("/{token}/notifications", h.notifications)
	})

	return r
}

type landResponse struct {
	SessionToken  string           `json:"session_token"`
	Campaign      domain.TokenInfo `json:"campaign"`
	State         statePayload     `json:"state"`
	DraftRestored bool             `json:"draft_restored"`
}

// land validates the collection token and hands the browser a session. A
// returning browser presenting its old session token gets its journey and
// draft back instead of a fresh start.
func (h *Handler) land(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	info, err := h.Validator.Validate(r.Context(), token, r.URL.Query().Get("group"))
	switch {
	case errors.Is(err, domain.ErrInvalidToken):
		response.WriteError(w, http.StatusNotFound, "This collection link is not valid.", response.CodeInvalidToken)
		return
	case errors.Is(err, domain.ErrTokenNotFound):
		response.WriteError(w, http.StatusNotFound, "This collection link is not active.", response.CodeNotFound)
		return
	case err != nil:
		logger.ErrorContext(r.Context(), "Token validation failed", "error", err)
		response.InternalError(w, "could not open collection link")
		return
	}

	// The link may also name the cookbook directly; mirror it so the rest
	// of the visit has it even if later pages drop the query string.
	if cb := r.URL.Query().Get("cookbook"); cb != "" {
		info.CookbookID = cb
	}

	sess, restored := h.resumeSession(r, token)
	if sess == nil {
		sess, err = h.Sessions.Open(r.Context(), *info)
		if err != nil {
			logger.ErrorContext(r.Context(), "Failed to open session", "error", err)
			if errors.Is(err, domain.ErrPersistenceUnavailable) {
				response.WriteError(w, http.StatusServiceUnavailable,
					"We can't start your visit right now, please try again shortly.",
					response.CodePersistenceUnavailable)
				return
			}
			response.InternalError(w, "could not open collection link")
			return
		}
	}

	signed, err := auth.NewSessionToken(sess.ID, h.SessionSecret, h.SessionTTL)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to sign session token", "error", err)
		response.InternalError(w, "could not open collection link")
		return
	}

	response.WriteJSON(w, http.StatusOK, landResponse{
		SessionToken:  signed,
		Campaign:      *info,
		State:         h.payload(sess, sess.State(), nil),
		DraftRestored: restored,
	})
}

// resumeSession rebuilds an earlier visit when the browser still holds a
// session token for this collection link. A draft snapshot trumps the
// session's own state when the session was rebuilt cold.
func (h *Handler) resumeSession(r *http.Request, token string) (*session.Session, bool) {
	tok := bearerToken(r)
	if tok == "" {
		return nil, false
	}
	claims, err := auth.Parse(tok, h.SessionSecret)
	if err != nil {
		return nil, false
	}
	sess, err := h.Sessions.Get(r.Context(), claims.SessionID)
	if err != nil || sess.Token != token {
		return nil, false
	}

	st := sess.State()
	if st.Submitted {
		// Nothing to restore after success; the draft is gone for good.
		return sess, false
	}

	snap, err := h.Drafts.Load(r.Context(), sess.ID)
	if err != nil {
		logger.WarnContext(r.Context(), "Draft restore failed", "session_id", sess.ID, "error", err)
		return sess, false
	}
	if snap == nil {
		return sess, false
	}
	sess.RestoreState(journey.State{
		Step:  journey.Step(snap.StepIndex),
		Draft: snap.Draft,
		Dirty: snap.Dirty,
	})
	return sess, true
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)
	if sess == nil {
		return
	}

	var in struct {
		FirstInitial string `json:"first_initial"`
		LastName     string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	// Each search supersedes the previous one; a slow older query must not
	// overwrite newer results on the client.
	ctx, seq := sess.BeginSearch(r.Context())

	candidates, err := h.Matcher.Search(ctx, sess.OwnerID, in.FirstInitial, in.LastName)
	if !sess.IsLatestSearch(seq) {
		response.WriteJSON(w, http.StatusOK, map[string]any{"stale": true})
		return
	}
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			response.WriteValidationError(w, "first initial and last name are required", verr.Fields)
			return
		}
		if errors.Is(err, context.Canceled) {
			response.WriteJSON(w, http.StatusOK, map[string]any{"stale": true})
			return
		}
		logger.ErrorContext(r.Context(), "Guest search failed", "error", err)
		response.InternalError(w, "search failed")
		return
	}

	if candidates == nil {
		candidates = []domain.GuestCandidate{}
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"candidates": candidates,
		"complete":   true,
	})
}

// identity locks in who is contributing: either a picked candidate from the
// search results or a brand-new name.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)
	if sess == nil {
		return
	}

	var in struct {
		Candidate *domain.GuestCandidate `json:"candidate,omitempty"`
		FullName  string                 `json:"full_name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	var ident domain.ContributorIdentity
	switch {
	case in.Candidate != nil:
		ident = service.IdentityFromSelection(*in.Candidate)
	case strings.TrimSpace(in.FullName) != "":
		var err error
		ident, err = service.IdentityFromName(in.FullName)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				response.WriteValidationError(w, "a name is required", verr.Fields)
				return
			}
			response.BadRequest(w, err.Error())
			return
		}
	default:
		response.WriteValidationError(w, "pick a match or enter a name", []string{"full_name"})
		return
	}

	if err := sess.SetIdentity(ident); err != nil {
		response.WriteError(w, http.StatusConflict, "identity is already set for this visit", response.CodeConflict)
		return
	}
	h.persist(r, sess)

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"identity": ident,
	})
}

func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	claims := mw.Claims(r)
	if claims == nil {
		response.Unauthorized(w, "session required")
		return nil
	}
	sess, err := h.Sessions.Get(r.Context(), claims.SessionID)
	if err != nil {
		response.Unauthorized(w, "session expired, reopen the collection link")
		return nil
	}
	if sess.Token != chi.URLParam(r, "token") {
		response.Unauthorized(w, "session does not belong to this collection link")
		return nil
	}
	return sess
}

func bearerToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return r.URL.Query().Get("session_token")
}
