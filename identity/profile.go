// Package identity normalizes the many shapes of identity payload the
// Ledgerline API returns (flat, wrapped in usersDto, doubly nested under a
// payload envelope, or reconstructed from decoded access-token claims) into
// one canonical profile the rest of the application consumes.
package identity

// Business is a business the user owns or belongs to.
type Business struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Profile is the canonical user record. Extra carries every original source
// field so nothing is silently dropped for consumers that read non-canonical
// fields.
type Profile struct {
	ID         string         `json:"id,omitempty"`
	Username   string         `json:"username,omitempty"`
	Email      string         `json:"email,omitempty"`
	FirstName  string         `json:"firstName,omitempty"`
	MiddleName string         `json:"middleName,omitempty"`
	LastName   string         `json:"lastName,omitempty"`
	FullName   string         `json:"fullName,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	PictureURL string         `json:"pictureUrl,omitempty"`
	Businesses []Business     `json:"businesses,omitempty"`
	Extra      map[string]any `json:"-"`
}
