package domain

import "strings"

// View names a screen of the shop UI.
type View string

const (
	ViewHome     View = "home"
	ViewCategory View = "category"
	ViewSales    View = "sales"
	ViewSettings View = "settings"
)

// NavigationState is where the user left the UI. It is not business data and
// is persisted only so a reload resumes in place.
type NavigationState struct {
	View               View   `json:"view"`
	SelectedCategoryID string `json:"selectedCategoryId,omitempty"`
	SearchQuery        string `json:"searchQuery"`
}

// DefaultNavigationState is the home view with an empty search.
func DefaultNavigationState() NavigationState {
	return NavigationState{View: ViewHome}
}

// Identity is an opaque credential bundle supplied by the login flow. It is
// never authenticated here; the email only scopes snapshot storage.
type Identity struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Valid reports whether the identity can scope a snapshot.
func (i Identity) Valid() bool {
	return strings.TrimSpace(i.Email) != ""
}

// NormalizedEmail is the lower-cased, trimmed email.
func (i Identity) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(i.Email))
}
