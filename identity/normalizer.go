package identity

import "strings"

// fieldPaths lists, in priority order, the source locations probed for each
// canonical field: the flat field, its snake_case variant, the claim names a
// decoded access token carries, the usersDto wrapper, and the doubly nested
// payload wrapper. The first defined value wins.
var fieldPaths = map[string][][]string{
	"id": {
		{"id"}, {"userId"}, {"user_id"}, {"sub"},
		{"usersDto", "id"}, {"payload", "usersDto", "id"},
	},
	"username": {
		{"username"}, {"user_name"}, {"preferred_username"},
		{"usersDto", "username"}, {"payload", "usersDto", "username"},
	},
	"email": {
		{"email"},
		{"usersDto", "email"}, {"payload", "usersDto", "email"},
	},
	"firstName": {
		{"firstName"}, {"first_name"}, {"given_name"},
		{"usersDto", "firstName"}, {"payload", "usersDto", "firstName"},
	},
	"middleName": {
		{"middleName"}, {"middle_name"},
		{"usersDto", "middleName"}, {"payload", "usersDto", "middleName"},
	},
	"lastName": {
		{"lastName"}, {"last_name"}, {"family_name"},
		{"usersDto", "lastName"}, {"payload", "usersDto", "lastName"},
	},
	"fullName": {
		{"fullName"}, {"full_name"}, {"name"},
		{"usersDto", "fullName"}, {"payload", "usersDto", "fullName"},
	},
	"phone": {
		{"phone"}, {"phoneNumber"}, {"phone_number"},
		{"usersDto", "phone"}, {"payload", "usersDto", "phone"},
	},
	"pictureUrl": {
		{"pictureUrl"}, {"picture_url"}, {"picture"}, {"profilePicture"},
		{"usersDto", "pictureUrl"}, {"payload", "usersDto", "pictureUrl"},
	},
}

var businessesPaths = [][]string{
	{"businesses"},
	{"usersDto", "businesses"},
	{"payload", "usersDto", "businesses"},
}

// Normalize merges a raw identity payload into a canonical Profile. The
// optional envelope is the persisted auth response; when it holds a deeper
// nested identity object, its fields act as a secondary source (lower
// priority than raw), chiefly to recover the businesses list after a reload.
//
// Returns nil only when raw itself is nil; a minimal identity still
// normalizes to a best-effort profile.
func Normalize(raw map[string]any, envelope map[string]any) *Profile {
	if raw == nil {
		return nil
	}

	profile := fromSource(raw)

	if secondary := envelopeIdentity(envelope); secondary != nil {
		fillBlanks(profile, fromSource(secondary))
	}

	deriveNames(profile)

	// Pass the original fields through underneath the canonical ones.
	profile.Extra = make(map[string]any, len(raw))
	for k, v := range raw {
		profile.Extra[k] = v
	}

	return profile
}

// fromSource builds a profile by probing one source map.
func fromSource(src map[string]any) *Profile {
	p := &Profile{
		ID:         firstString(src, fieldPaths["id"]),
		Username:   firstString(src, fieldPaths["username"]),
		Email:      firstString(src, fieldPaths["email"]),
		FirstName:  firstString(src, fieldPaths["firstName"]),
		MiddleName: firstString(src, fieldPaths["middleName"]),
		LastName:   firstString(src, fieldPaths["lastName"]),
		FullName:   firstString(src, fieldPaths["fullName"]),
		Phone:      firstString(src, fieldPaths["phone"]),
		PictureURL: firstString(src, fieldPaths["pictureUrl"]),
	}

	for _, path := range businessesPaths {
		if v, ok := lookup(src, path); ok {
			if businesses := toBusinesses(v); businesses != nil {
				p.Businesses = businesses
				break
			}
		}
	}

	return p
}

// envelopeIdentity digs the deepest identity object out of a persisted auth
// envelope, trying the shapes the different login paths produce.
func envelopeIdentity(envelope map[string]any) map[string]any {
	if envelope == nil {
		return nil
	}
	for _, path := range [][]string{
		{"payload", "usersDto"},
		{"data", "payload"},
		{"payload"},
		{"usersDto"},
	} {
		if v, ok := lookup(envelope, path); ok {
			if m, ok := v.(map[string]any); ok {
				return m
			}
		}
	}
	return envelope
}

// fillBlanks copies secondary values into fields the primary source left
// empty.
func fillBlanks(dst, src *Profile) {
	if dst.ID == "" {
		dst.ID = src.ID
	}
	if dst.Username == "" {
		dst.Username = src.Username
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.FirstName == "" {
		dst.FirstName = src.FirstName
	}
	if dst.MiddleName == "" {
		dst.MiddleName = src.MiddleName
	}
	if dst.LastName == "" {
		dst.LastName = src.LastName
	}
	if dst.FullName == "" {
		dst.FullName = src.FullName
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.PictureURL == "" {
		dst.PictureURL = src.PictureURL
	}
	if len(dst.Businesses) == 0 {
		dst.Businesses = src.Businesses
	}
}

// deriveNames reconciles the full name with its components: a lone full name
// is split on whitespace (first token, middle tokens, last token); lone
// components are joined, empty-filtered, into the full name.
func deriveNames(p *Profile) {
	hasComponents := p.FirstName != "" || p.MiddleName != "" || p.LastName != ""

	switch {
	case p.FullName != "" && !hasComponents:
		parts := strings.Fields(p.FullName)
		if len(parts) == 0 {
			return
		}
		p.FirstName = parts[0]
		if len(parts) > 1 {
			p.LastName = parts[len(parts)-1]
			p.MiddleName = strings.Join(parts[1:len(parts)-1], " ")
		}
	case p.FullName == "" && hasComponents:
		parts := make([]string, 0, 3)
		for _, part := range []string{p.FirstName, p.MiddleName, p.LastName} {
			if part != "" {
				parts = append(parts, part)
			}
		}
		p.FullName = strings.Join(parts, " ")
	}
}

// lookup walks nested maps along path.
func lookup(src map[string]any, path []string) (any, bool) {
	current := any(src)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// firstString probes the given paths in order and returns the first
// non-empty string value.
func firstString(src map[string]any, paths [][]string) string {
	for _, path := range paths {
		if v, ok := lookup(src, path); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// toBusinesses converts a decoded JSON businesses list.
func toBusinesses(v any) []Business {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	businesses := make([]Business, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		b := Business{
			ID:   firstString(m, [][]string{{"id"}, {"businessId"}, {"business_id"}}),
			Name: firstString(m, [][]string{{"name"}, {"businessName"}, {"business_name"}}),
		}
		businesses = append(businesses, b)
	}
	return businesses
}
