package collect

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/draft"
	"github.com/smallplates/collect/internal/http/response"
	"github.com/smallplates/collect/internal/journey"
	"github.com/smallplates/collect/internal/session"
	"github.com/smallplates/collect/pkg/logger"
)

// statePayload is the journey snapshot every journey endpoint returns.
type statePayload struct {
	Step         string             `json:"step"`
	StepIndex    int                `json:"step_index"`
	FocusHeading string             `json:"focus_heading,omitempty"`
	Exited       bool               `json:"exited,omitempty"`
	Draft        domain.RecipeDraft `json:"draft"`
	Dirty        bool               `json:"dirty"`
	Submitted    bool               `json:"submitted"`
	SaveStatus   draft.Status       `json:"save_status"`
}

func (h *Handler) payload(sess *session.Session, st journey.State, tr *journey.Transition) statePayload {
	p := statePayload{
		Step:       st.Step.String(),
		StepIndex:  int(st.Step),
		Draft:      st.Draft,
		Dirty:      st.Dirty,
		Submitted:  st.Submitted,
		SaveStatus: h.Drafts.Status(sess.ID),
	}
	if tr != nil {
		p.FocusHeading = tr.FocusHeading
		p.Exited = tr.Exited
	}
	return p
}

func (h *Handler) journeyState(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)
	if sess == nil {
		return
	}
	response.WriteJSON(w, http.StatusOK, h.payload(sess, sess.State(), nil))
}

func (h *Handler) journeyEvent(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)
	if sess == nil {
		return
	}

	var ev journey.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	// Submission success is reported by the submit endpoints, never by the
	// client directly.
	if ev.Type == journey.EventSubmitSucceeded {
		response.BadRequest(w, "event not accepted")
		return
	}

	st, tr, err := sess.Apply(ev)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			response.WriteValidationError(w, "required fields are missing", verr.Fields)
			return
		}
		response.BadRequest(w, err.Error())
		return
	}

	if ev.Type == journey.EventAddAnother {
		h.Drafts.Reopen(sess.ID)
		sess.ResetForAnother()
	}

	h.saveDraft(r, sess, st)
	h.persist(r, sess)

	response.WriteJSON(w, http.StatusOK, h.payload(sess, st, &tr))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)
	if sess == nil {
		return
	}

	// After success the journey sits on the success screen, so the replay
	// answer has to come before the step guard.
	if h.replaySubmitted(w, sess) {
		return
	}

	st := sess.State()
	if st.Step != journey.StepSummary {
		response.BadRequest(w, "submission is only accepted from the summary screen")
		return
	}
	h.doSubmit(w, r, sess, st.Draft)
}

// pasteSubmit is the shortcut for contributors who paste a whole recipe on
// the form screen: it submits immediately without visiting the summary.
func (h *Handler) pasteSubmit(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)
	if sess == nil {
		return
	}

	if h.replaySubmitted(w, sess) {
		return
	}

	st := sess.State()
	if st.Step != journey.StepRecipeForm {
		response.BadRequest(w, "paste submission is only accepted from the recipe form")
		return
	}

	var in struct {
		RawFullText string `json:"raw_full_text"`
		RecipeName  string `json:"recipe_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if strings.TrimSpace(in.RawFullText) == "" {
		response.WriteValidationError(w, "pasted recipe is empty", []string{"raw_full_text"})
		return
	}

	// The title belongs to the blob: unless this request names the recipe,
	// it is derived from the blob's first line, never from a name typed on
	// the form earlier.
	d := st.Draft
	d.RawFullText = in.RawFullText
	d.RecipeName = in.RecipeName
	h.doSubmit(w, r, sess, d)
}

type submitResponse struct {
	RecipeID    string       `json:"recipe_id"`
	GuestID     string       `json:"guest_id"`
	NotifyOptIn bool         `json:"notify_opt_in"`
	NotifyEmail string       `json:"notify_email,omitempty"`
	State       statePayload `json:"state"`
}

// replaySubmitted answers a repeated submit after success with the first
// result unchanged, whatever screen the journey has moved to since.
func (h *Handler) replaySubmitted(w http.ResponseWriter, sess *session.Session) bool {
	done, prev := sess.Submitted()
	if !done || prev == nil {
		return false
	}
	response.WriteJSON(w, http.StatusOK, submitResponse{
		RecipeID:    prev.RecipeID,
		GuestID:     prev.GuestID,
		NotifyOptIn: prev.NotifyOptIn,
		NotifyEmail: prev.NotifyEmail,
		State:       h.payload(sess, sess.State(), nil),
	})
	return true
}

func (h *Handler) doSubmit(w http.ResponseWriter, r *http.Request, sess *session.Session, d domain.RecipeDraft) {
	identity, err := sess.Identity()
	if err != nil {
		response.BadRequest(w, "identity must be chosen before submitting")
		return
	}
	// Concurrent tabs can race the endpoint-level replay check.
	if h.replaySubmitted(w, sess) {
		return
	}

	if err := sess.BeginSubmit(); err != nil {
		response.WriteError(w, http.StatusConflict, "a submission is already in progress", response.CodeDuplicateSubmission)
		return
	}

	result, err := h.Pipeline.Submit(r.Context(), sess.Owner(), identity, d, r.Header.Get("Idempotency-Key"))
	if err != nil {
		sess.EndSubmit(nil)
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			response.WriteValidationError(w, "required fields are missing", verr.Fields)
			return
		}
		logger.ErrorContext(r.Context(), "Submission failed", "error", err)
		// The draft and identity are untouched; the visitor can retry.
		response.WriteError(w, http.StatusServiceUnavailable,
			"We couldn't save your recipe. Your draft is safe, please try again.",
			response.CodeNetworkFailure)
		return
	}
	sess.EndSubmit(result)
	sess.AdoptGuest(result.GuestID)

	st, tr, err := sess.Apply(journey.Event{Type: journey.EventSubmitSucceeded})
	if err != nil {
		// The recipe is stored; a reducer complaint here is a bug, not a
		// visitor problem.
		logger.ErrorContext(r.Context(), "Journey refused submit_succeeded", "error", err)
		st, tr = sess.State(), journey.Transition{From: st.Step, To: st.Step}
	}

	if err := h.Drafts.Complete(r.Context(), sess.ID); err != nil {
		logger.ErrorContext(r.Context(), "Failed to clear draft after submission",
			"session_id", sess.ID, "error", err)
	}
	h.persist(r, sess)

	response.WriteJSON(w, http.StatusOK, submitResponse{
		RecipeID:    result.RecipeID,
		GuestID:     result.GuestID,
		NotifyOptIn: result.NotifyOptIn,
		NotifyEmail: result.NotifyEmail,
		State:       h.payload(sess, st, &tr),
	})
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFor(w, r)
	if sess == nil {
		return
	}

	done, result := sess.Submitted()
	if !done || result == nil {
		response.BadRequest(w, "no submission to attach a preference to")
		return
	}
	identity, err := sess.Identity()
	if err != nil {
		response.BadRequest(w, "identity must be chosen before submitting")
		return
	}

	var in struct {
		Email string `json:"email"`
		OptIn bool   `json:"opt_in"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	if err := h.Notifications.Record(r.Context(), *result, identity, in.Email, in.OptIn); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			response.WriteValidationError(w, "an email address is required to opt in", verr.Fields)
			return
		}
		response.InternalError(w, "could not record preference")
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"opt_in": in.OptIn,
		"email":  strings.TrimSpace(in.Email),
	})
}

// saveDraft writes the current journey snapshot through to the draft store.
// Failures degrade to no autosave rather than failing the journey.
func (h *Handler) saveDraft(r *http.Request, sess *session.Session, st journey.State) {
	if st.Submitted {
		return
	}
	snap := draft.Snapshot{StepIndex: int(st.Step), Draft: st.Draft, Dirty: st.Dirty}
	if err := h.Drafts.Save(r.Context(), sess.ID, snap); err != nil {
		logger.WarnContext(r.Context(), "Autosave unavailable", "session_id", sess.ID, "error", err)
	}
}

func (h *Handler) persist(r *http.Request, sess *session.Session) {
	if err := h.Sessions.Persist(r.Context(), sess); err != nil {
		logger.WarnContext(r.Context(), "Session persist failed", "session_id", sess.ID, "error", err)
	}
}
