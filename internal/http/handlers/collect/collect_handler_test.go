package collect_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smallplates/collect/internal/domain"
	"github.com/smallplates/collect/internal/draft"
	"github.com/smallplates/collect/internal/http/handlers/collect"
	"github.com/smallplates/collect/internal/kv"
	"github.com/smallplates/collect/internal/service"
	"github.com/smallplates/collect/internal/session"
)

// ---------- Mocks ----------

type mockTokenRepo struct {
	byToken map[string]*domain.TokenInfo
}

func (m *mockTokenRepo) FindByToken(_ context.Context, token, _ string) (*domain.TokenInfo, error) {
	return m.byToken[token], nil
}

type mockGuestRepo struct {
	mu         sync.Mutex
	candidates []domain.GuestCandidate
	created    int
	bumped     []string
	nextID     int
}

func (m *mockGuestRepo) Search(_ context.Context, _, firstInitial, lastName string) ([]domain.GuestCandidate, error) {
	var out []domain.GuestCandidate
	for _, c := range m.candidates {
		if strings.EqualFold(c.FirstName[:1], firstInitial) && strings.EqualFold(c.LastName, lastName) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockGuestRepo) Create(_ context.Context, _, firstName, lastName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	m.nextID++
	return fmt.Sprintf("guest-%d", m.nextID), nil
}

func (m *mockGuestRepo) BumpExpectedRecipes(_ context.Context, guestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bumped = append(m.bumped, guestID)
	return nil
}

func (m *mockGuestRepo) MarkSubmitted(context.Context, string) error { return nil }

func (m *mockGuestRepo) NotifyFields(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (m *mockGuestRepo) UpdateNotification(context.Context, string, string, bool) error {
	return nil
}

type mockRecipeRepo struct {
	mu        sync.Mutex
	inserted  []domain.RecipeDraft
	insertErr error
	nextID    int
}

func (m *mockRecipeRepo) Insert(_ context.Context, _, _ string, d domain.RecipeDraft, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.nextID++
	m.inserted = append(m.inserted, d)
	return fmt.Sprintf("recipe-%d", m.nextID), nil
}

func (m *mockRecipeRepo) UpdateNotification(context.Context, string, string, bool) error {
	return nil
}

type mockIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string][2]string
}

func (m *mockIdempotencyRepo) CheckOrCreate(_ context.Context, key, recipeID, guestID string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key]; ok {
		return rec[0], rec[1], nil
	}
	if recipeID != "" {
		m.records[key] = [2]string{recipeID, guestID}
	}
	return "", "", nil
}

func (m *mockIdempotencyRepo) CleanupExpired(context.Context) (int64, error) { return 0, nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (noopPublisher) Close() error                                       { return nil }

// ---------- Harness ----------

type harness struct {
	router  chi.Router
	guests  *mockGuestRepo
	recipes *mockRecipeRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tokens := &mockTokenRepo{byToken: map[string]*domain.TokenInfo{
		"weddingtok123": {
			Token:       "weddingtok123",
			OwnerID:     "owner1",
			DisplayName: "Sam & Alex",
			Valid:       true,
		},
	}}
	guests := &mockGuestRepo{candidates: []domain.GuestCandidate{
		{ID: "g1", FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
		{ID: "g2", FirstName: "John", LastName: "Doe"},
	}}
	recipes := &mockRecipeRepo{}
	idem := &mockIdempotencyRepo{records: make(map[string][2]string)}

	store := kv.NewMemoryStore()
	sessions := session.NewManager(store, time.Hour)
	drafts := draft.NewSaver(store, time.Hour, time.Millisecond)

	h := collect.NewHandler(
		service.NewTokenValidator(tokens),
		service.NewGuestMatcher(guests, time.Second),
		service.NewSubmissionPipeline(guests, recipes, idem, noopPublisher{}),
		service.NewNotificationPreference(guests, recipes, noopPublisher{}),
		sessions, drafts,
		"test-secret", time.Hour,
	)

	r := chi.NewRouter()
	r.Mount("/collect", h.Routes())
	return &harness{router: r, guests: guests, recipes: recipes}
}

func (h *harness) do(t *testing.T, method, path, sessionToken string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (h *harness) land(t *testing.T) string {
	t.Helper()
	rec := h.do(t, "GET", "/collect/weddingtok123", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("land: %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		SessionToken string `json:"session_token"`
	}
	decode(t, rec, &out)
	if out.SessionToken == "" {
		t.Fatal("no session token issued")
	}
	return out.SessionToken
}

func (h *harness) event(t *testing.T, tok string, ev map[string]string) map[string]any {
	t.Helper()
	rec := h.do(t, "POST", "/collect/weddingtok123/journey/events", tok, ev)
	if rec.Code != http.StatusOK {
		t.Fatalf("event %v: %d %s", ev, rec.Code, rec.Body.String())
	}
	var out map[string]any
	decode(t, rec, &out)
	return out
}

func (h *harness) fillForm(t *testing.T, tok string) {
	t.Helper()
	for i := 0; i < 3; i++ {
		h.event(t, tok, map[string]string{"type": "next"})
	}
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "recipe_name", "value": "Paella"})
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "ingredients", "value": "rice, saffron"})
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "instructions", "value": "cook slowly"})
	h.event(t, tok, map[string]string{"type": "next"})
}

// ---------- Tests ----------

func TestLandUnknownToken(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "GET", "/collect/unknowntok", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d", rec.Code)
	}
	var out struct{ Code string }
	decode(t, rec, &out)
	if out.Code != "NOT_FOUND" {
		t.Errorf("code %q", out.Code)
	}
}

func TestLandMalformedToken(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "GET", "/collect/bad%20token", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	var out struct{ Code string }
	decode(t, rec, &out)
	if out.Code != "INVALID_TOKEN" {
		t.Errorf("code %q", out.Code)
	}
}

func TestJourneyRequiresSession(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "GET", "/collect/weddingtok123/journey", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestSearchFindsExistingGuests(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)

	rec := h.do(t, "POST", "/collect/weddingtok123/search", tok,
		map[string]string{"first_initial": "J", "last_name": "Doe"})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Candidates []domain.GuestCandidate `json:"candidates"`
		Complete   bool                    `json:"complete"`
	}
	decode(t, rec, &out)
	if !out.Complete || len(out.Candidates) != 2 {
		t.Fatalf("got %+v", out)
	}
}

func TestSearchNoMatch(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)

	rec := h.do(t, "POST", "/collect/weddingtok123/search", tok,
		map[string]string{"first_initial": "Z", "last_name": "Nobody"})
	var out struct {
		Candidates []domain.GuestCandidate `json:"candidates"`
	}
	decode(t, rec, &out)
	if len(out.Candidates) != 0 {
		t.Fatalf("got %+v", out)
	}
}

func TestIdentityLocksAfterSelection(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)

	sel := map[string]any{"candidate": map[string]any{
		"id": "g1", "first_name": "Jane", "last_name": "Doe",
	}}
	if rec := h.do(t, "POST", "/collect/weddingtok123/identity", tok, sel); rec.Code != http.StatusOK {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	rec := h.do(t, "POST", "/collect/weddingtok123/identity", tok,
		map[string]string{"full_name": "Someone Else"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second identity set should conflict, got %d", rec.Code)
	}
}

func TestFullJourneyNewContributor(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)

	if rec := h.do(t, "POST", "/collect/weddingtok123/identity", tok,
		map[string]string{"full_name": "Carlos Ruiz"}); rec.Code != http.StatusOK {
		t.Fatalf("identity: %d %s", rec.Code, rec.Body.String())
	}

	h.fillForm(t, tok)

	req := httptest.NewRequest("POST", "/collect/weddingtok123/journey/submit", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Idempotency-Key", "once-1")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		RecipeID string `json:"recipe_id"`
		GuestID  string `json:"guest_id"`
		State    struct {
			Step         string `json:"step"`
			FocusHeading string `json:"focus_heading"`
		} `json:"state"`
	}
	decode(t, rec, &out)
	if out.RecipeID == "" || out.GuestID == "" {
		t.Fatalf("result: %+v", out)
	}
	if out.State.Step != "success" || out.State.FocusHeading != "success-heading" {
		t.Errorf("state: %+v", out.State)
	}
	if h.guests.created != 1 {
		t.Errorf("want one new guest, got %d", h.guests.created)
	}

	// Landing again after success restores nothing.
	land := h.do(t, "GET", "/collect/weddingtok123", tok, nil)
	var relanded struct {
		DraftRestored bool `json:"draft_restored"`
	}
	decode(t, land, &relanded)
	if relanded.DraftRestored {
		t.Error("draft must be gone after a successful submission")
	}
}

func TestSubmitTwiceYieldsOneRecipe(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)
	h.do(t, "POST", "/collect/weddingtok123/identity", tok, map[string]string{"full_name": "Carlos Ruiz"})
	h.fillForm(t, tok)

	first := h.do(t, "POST", "/collect/weddingtok123/journey/submit", tok, nil)
	second := h.do(t, "POST", "/collect/weddingtok123/journey/submit", tok, nil)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("codes %d %d", first.Code, second.Code)
	}
	var r1, r2 struct {
		RecipeID string `json:"recipe_id"`
	}
	decode(t, first, &r1)
	decode(t, second, &r2)
	if r1.RecipeID != r2.RecipeID {
		t.Errorf("double submit produced two recipes: %q %q", r1.RecipeID, r2.RecipeID)
	}
	if len(h.recipes.inserted) != 1 {
		t.Errorf("inserts: %d", len(h.recipes.inserted))
	}
}

func TestSubmitFailureKeepsDraftForRetry(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)
	h.do(t, "POST", "/collect/weddingtok123/identity", tok, map[string]string{"full_name": "Carlos Ruiz"})
	h.fillForm(t, tok)

	h.recipes.insertErr = fmt.Errorf("connection refused")
	rec := h.do(t, "POST", "/collect/weddingtok123/journey/submit", tok, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	var errOut struct{ Code string }
	decode(t, rec, &errOut)
	if errOut.Code != "NETWORK_FAILURE" {
		t.Errorf("code %q", errOut.Code)
	}

	// The journey is still at summary with the draft intact.
	state := h.do(t, "GET", "/collect/weddingtok123/journey", tok, nil)
	var st struct {
		Step  string `json:"step"`
		Draft struct {
			RecipeName string `json:"recipe_name"`
		} `json:"draft"`
	}
	decode(t, state, &st)
	if st.Step != "summary" || st.Draft.RecipeName != "Paella" {
		t.Fatalf("state after failure: %+v", st)
	}

	// Retry succeeds once the collaborator is back.
	h.recipes.insertErr = nil
	retry := h.do(t, "POST", "/collect/weddingtok123/journey/submit", tok, nil)
	if retry.Code != http.StatusOK {
		t.Fatalf("retry: %d %s", retry.Code, retry.Body.String())
	}
}

func TestPasteShortcutSubmitsFromForm(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)
	h.do(t, "POST", "/collect/weddingtok123/identity", tok, map[string]string{"full_name": "Carlos Ruiz"})
	for i := 0; i < 3; i++ {
		h.event(t, tok, map[string]string{"type": "next"})
	}

	rec := h.do(t, "POST", "/collect/weddingtok123/journey/paste", tok,
		map[string]string{"raw_full_text": "Abuela's Flan\nMilk, eggs, sugar\nBake."})
	if rec.Code != http.StatusOK {
		t.Fatalf("paste: %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		RecipeID string `json:"recipe_id"`
		State    struct {
			Step string `json:"step"`
		} `json:"state"`
	}
	decode(t, rec, &out)
	if out.RecipeID == "" || out.State.Step != "success" {
		t.Fatalf("got %+v", out)
	}

	ins := h.recipes.inserted[0]
	if ins.RecipeName != "Abuela's Flan" || ins.Ingredients != "" || ins.Instructions != "" {
		t.Errorf("stored draft: %+v", ins)
	}
}

func TestPasteTitleComesFromBlobNotEarlierForm(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)
	h.do(t, "POST", "/collect/weddingtok123/identity", tok, map[string]string{"full_name": "Carlos Ruiz"})
	for i := 0; i < 3; i++ {
		h.event(t, tok, map[string]string{"type": "next"})
	}
	// A name typed on the form before pasting does not title the pasted recipe.
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "recipe_name", "value": "Stale Typed Name"})

	rec := h.do(t, "POST", "/collect/weddingtok123/journey/paste", tok,
		map[string]string{"raw_full_text": "Abuela's Flan\nMilk, eggs, sugar\nBake."})
	if rec.Code != http.StatusOK {
		t.Fatalf("paste: %d %s", rec.Code, rec.Body.String())
	}

	if got := h.recipes.inserted[0].RecipeName; got != "Abuela's Flan" {
		t.Errorf("stored title %q, want the blob's first line", got)
	}
}

func TestGuardBlocksSummaryWithMissingFields(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)
	h.do(t, "POST", "/collect/weddingtok123/identity", tok, map[string]string{"full_name": "Carlos Ruiz"})
	for i := 0; i < 3; i++ {
		h.event(t, tok, map[string]string{"type": "next"})
	}
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "recipe_name", "value": "Paella"})

	rec := h.do(t, "POST", "/collect/weddingtok123/journey/events", tok, map[string]string{"type": "next"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Fields []string `json:"fields"`
	}
	decode(t, rec, &out)
	if len(out.Fields) != 2 {
		t.Errorf("fields: %v", out.Fields)
	}
}

func TestDraftRestoredOnReland(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)
	h.do(t, "POST", "/collect/weddingtok123/identity", tok, map[string]string{"full_name": "Carlos Ruiz"})
	for i := 0; i < 3; i++ {
		h.event(t, tok, map[string]string{"type": "next"})
	}
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "recipe_name", "value": "Work in progress"})

	rec := h.do(t, "GET", "/collect/weddingtok123", tok, nil)
	var out struct {
		DraftRestored bool `json:"draft_restored"`
		State         struct {
			Step  string `json:"step"`
			Dirty bool   `json:"dirty"`
			Draft struct {
				RecipeName string `json:"recipe_name"`
			} `json:"draft"`
		} `json:"state"`
	}
	decode(t, rec, &out)
	if !out.DraftRestored {
		t.Fatal("draft should be restored on re-entry")
	}
	if out.State.Step != "recipe_form" || out.State.Draft.RecipeName != "Work in progress" {
		t.Errorf("restored state: %+v", out.State)
	}
	// The page-exit guard stays armed across the reload.
	if !out.State.Dirty {
		t.Error("restored draft should still be dirty")
	}
}

func TestNotificationsAfterSubmit(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)
	h.do(t, "POST", "/collect/weddingtok123/identity", tok, map[string]string{"full_name": "Carlos Ruiz"})
	h.fillForm(t, tok)

	// Before submit: nothing to attach to.
	early := h.do(t, "POST", "/collect/weddingtok123/notifications", tok,
		map[string]any{"email": "c@example.com", "opt_in": true})
	if early.Code != http.StatusBadRequest {
		t.Fatalf("early preference: %d", early.Code)
	}

	h.do(t, "POST", "/collect/weddingtok123/journey/submit", tok, nil)

	ok := h.do(t, "POST", "/collect/weddingtok123/notifications", tok,
		map[string]any{"email": "c@example.com", "opt_in": true})
	if ok.Code != http.StatusOK {
		t.Fatalf("preference: %d %s", ok.Code, ok.Body.String())
	}

	// Opt-in without an email fails validation.
	bad := h.do(t, "POST", "/collect/weddingtok123/notifications", tok,
		map[string]any{"email": "", "opt_in": true})
	if bad.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank email opt-in: %d", bad.Code)
	}
}

func TestAddAnotherStartsFreshDraft(t *testing.T) {
	h := newHarness(t)
	tok := h.land(t)
	h.do(t, "POST", "/collect/weddingtok123/identity", tok, map[string]string{"full_name": "Carlos Ruiz"})
	h.fillForm(t, tok)
	h.do(t, "POST", "/collect/weddingtok123/journey/submit", tok, nil)

	out := h.event(t, tok, map[string]string{"type": "add_another"})
	if out["step"] != "recipe_form" {
		t.Fatalf("step %v", out["step"])
	}
	draftOut, _ := out["draft"].(map[string]any)
	if name, _ := draftOut["recipe_name"].(string); name != "" {
		t.Errorf("new draft should be blank, got %q", name)
	}

	// The second submission reuses the locked identity but inserts a new
	// recipe for the same guest.
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "recipe_name", "value": "Flan"})
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "ingredients", "value": "milk"})
	h.event(t, tok, map[string]string{"type": "edit_field", "field": "instructions", "value": "bake"})
	h.event(t, tok, map[string]string{"type": "next"})
	rec := h.do(t, "POST", "/collect/weddingtok123/journey/submit", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second submit: %d %s", rec.Code, rec.Body.String())
	}
	if len(h.recipes.inserted) != 2 {
		t.Errorf("inserts: %d", len(h.recipes.inserted))
	}
	if h.guests.created != 1 {
		t.Errorf("guest should be created once, got %d", h.guests.created)
	}
}
