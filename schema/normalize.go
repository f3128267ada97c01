package schema

import "strings"

// ValidateUserID ensures a user id matches [a-z0-9._-] with no normalization.
func ValidateUserID(userID UserID) error {
	raw := string(userID)
	if raw == "" {
		return ErrInvalidUser
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidUser
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidUser
	}
	return nil
}

// NormalizeViewMode validates a view mode name.
func NormalizeViewMode(value string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(value))) {
	case ViewSingle:
		return ViewSingle, nil
	case ViewSplit:
		return ViewSplit, nil
	default:
		return "", ErrInvalidViewMode
	}
}

// ParseParameterAssignments parses "key=value" pairs. Values may contain '='.
func ParseParameterAssignments(args []string) (Parameters, error) {
	out := Parameters{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, ErrInvalidRequest
		}
		out[key] = value
	}
	return out, nil
}
