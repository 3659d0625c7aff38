package domain

import (
	"strings"
)

// TokenInfo is the campaign metadata a collection token resolves to.
// A token is either valid or it is not; partially-resolved tokens do not exist.
type TokenInfo struct {
	Token           string `json:"token"`
	OwnerID         string `json:"owner_id"`
	DisplayName     string `json:"display_name"`
	RawDisplayName  string `json:"raw_display_name"`
	CustomMessage   string `json:"custom_message,omitempty"`
	CustomSignature string `json:"custom_signature,omitempty"`
	CoupleNames     string `json:"couple_names,omitempty"`
	CoupleImageURL  string `json:"couple_image_url,omitempty"`
	GroupID         string `json:"group_id,omitempty"`
	CookbookID      string `json:"cookbook_id,omitempty"`
	// OwnerEmail is where new-submission alerts go; never shown to visitors.
	OwnerEmail string `json:"-"`
	Valid      bool   `json:"is_valid"`
}

// CampaignOwner identifies the account collecting recipes and where to alert
// them about new submissions.
type CampaignOwner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// GuestCandidate is an existing contributor row surfaced by a name search.
type GuestCandidate struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// ContributorIdentity is the resolved party submitting the recipe. It is
// decided once, at guest-selection time, and never changes for the rest of
// the journey. Existing identities reference a guest row by ID; new ones
// carry only the name the visitor typed.
type ContributorIdentity struct {
	GuestID   string `json:"guest_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Existing  bool   `json:"existing"`
}

// FullName returns the name as it will be printed in the cookbook.
func (c ContributorIdentity) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// RecipeDraft is the in-progress recipe content. RawFullText and the
// structured pair (Ingredients, Instructions) are mutually exclusive in the
// final submission: when RawFullText is set the structured fields are sent
// empty no matter what is cached locally.
type RecipeDraft struct {
	RecipeName   string `json:"recipe_name"`
	Ingredients  string `json:"ingredients"`
	Instructions string `json:"instructions"`
	PersonalNote string `json:"personal_note"`
	RawFullText  string `json:"raw_full_text,omitempty"`
}

// MissingFields reports which of the structured required fields are empty
// after trimming. Used by the RecipeForm → Summary guard.
func (d RecipeDraft) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(d.RecipeName) == "" {
		missing = append(missing, "recipe_name")
	}
	if strings.TrimSpace(d.Ingredients) == "" {
		missing = append(missing, "ingredients")
	}
	if strings.TrimSpace(d.Instructions) == "" {
		missing = append(missing, "instructions")
	}
	return missing
}

// IsEmpty reports whether nothing has been entered yet.
func (d RecipeDraft) IsEmpty() bool {
	return d.RecipeName == "" && d.Ingredients == "" && d.Instructions == "" &&
		d.PersonalNote == "" && d.RawFullText == ""
}

// SubmissionResult is returned exactly once per successful submission.
type SubmissionResult struct {
	RecipeID    string `json:"recipe_id"`
	GuestID     string `json:"guest_id"`
	RecipeName  string `json:"recipe_name,omitempty"`
	NotifyOptIn bool   `json:"notify_opt_in"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

// DefaultRecipeTitle is used when a pasted blob has no usable first line.
const DefaultRecipeTitle = "Untitled Recipe"

// maxDerivedTitleLen caps titles derived from pasted text.
const maxDerivedTitleLen = 120

// TitleFromRawText derives a recipe name from the first usable line of a
// pasted blob.
func TitleFromRawText(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxDerivedTitleLen {
			line = strings.TrimSpace(line[:maxDerivedTitleLen])
		}
		return line
	}
	return DefaultRecipeTitle
}

// SplitFullName splits a free-text full name on whitespace: the last token
// becomes the last name, everything before it the first name. Known to be
// wrong for multi-word last names ("Maria de la Cruz" splits to "Maria de
// la" / "Cruz"); printed contributor names depend on this exact behavior,
// so do not change it silently.
func SplitFullName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

const maxTokenLen = 128

// ValidTokenFormat is the cheap fail-fast check applied before any lookup.
// Collection tokens are opaque URL-safe strings.
func ValidTokenFormat(token string) bool {
	if token == "" || len(token) > maxTokenLen {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
