package model

// Mapping holds optional renames applied while translating objects
type Mapping struct {
	// Users maps source logins to destination logins in provenance headers
	Users map[string]string `toml:"users"`
	// Labels maps source label names to destination label names
	Labels map[string]string `toml:"labels"`
	// PlaceholderTitle overrides the title of padding objects. "%d" is replaced with the number.
	PlaceholderTitle string `toml:"placeholder_title"`
}

// User returns the destination login for a source login
func (m *Mapping) User(login string) string {
	if m != nil {
		if mapped, ok := m.Users[login]; ok && mapped != "" {
			return mapped
		}
	}
	return login
}

// Label returns the destination label name for a source label name
func (m *Mapping) Label(name string) string {
	if m != nil {
		if mapped, ok := m.Labels[name]; ok && mapped != "" {
			return mapped
		}
	}
	return name
}
