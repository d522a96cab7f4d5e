package realm

// User is the external realm's user representation, trimmed to the fields
// this service reads and writes.
type User struct {
	ID              string       `json:"id,omitempty"`
	Username        string       `json:"username,omitempty"`
	Email           string       `json:"email,omitempty"`
	FirstName       string       `json:"firstName,omitempty"`
	Enabled         bool         `json:"enabled"`
	EmailVerified   bool         `json:"emailVerified"`
	RequiredActions []string     `json:"requiredActions,omitempty"`
	Credentials     []Credential `json:"credentials,omitempty"`
}

type Credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// Role is a realm-level role. The ID is required by the role-mapping
// endpoints, so callers fetch full representations before batching.
type Role struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
