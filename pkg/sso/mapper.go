package sso

import (
	"strconv"
	"strings"
)

// MapAttributes resolves the canonical profile fields and workspace role
// from raw IdP claims using the configuration's mapping paths. Email is
// mandatory; its absence is a MappingError. Role resolution starts from the
// JIT default role and applies the configuration's group rules in order,
// first match wins.
func MapAttributes(cfg *Configuration, claims map[string]interface{}) (*ResolvedIdentity, error) {
	email, ok := resolveString(claims, cfg.Mapping.EmailPath)
	if !ok || email == "" {
		return nil, NewMappingError(CodeMissingEmail,
			"no email resolvable at path %q", cfg.Mapping.EmailPath)
	}

	identity := &ResolvedIdentity{
		Email: strings.ToLower(strings.TrimSpace(email)),
		Role:  cfg.JITDefaultRole,
	}
	if identity.Role == "" {
		identity.Role = RoleViewer
	}

	if cfg.Mapping.NamePath != "" {
		identity.Name, _ = resolveString(claims, cfg.Mapping.NamePath)
	}
	if cfg.Mapping.FirstNamePath != "" {
		identity.FirstName, _ = resolveString(claims, cfg.Mapping.FirstNamePath)
	}
	if cfg.Mapping.LastNamePath != "" {
		identity.LastName, _ = resolveString(claims, cfg.Mapping.LastNamePath)
	}
	if cfg.Mapping.AvatarPath != "" {
		identity.AvatarURL, _ = resolveString(claims, cfg.Mapping.AvatarPath)
	}

	// Name falls back to first+last when not directly mapped.
	if identity.Name == "" && identity.FirstName != "" && identity.LastName != "" {
		identity.Name = identity.FirstName + " " + identity.LastName
	}

	if cfg.Mapping.GroupsPath != "" {
		identity.Groups = resolveStringList(claims, cfg.Mapping.GroupsPath)
		if role, ok := resolveRole(cfg.GroupRoles, identity.Groups); ok {
			identity.Role = role
		}
	}
	return identity, nil
}

// resolveRole applies group rules in declaration order and returns the role
// of the first rule whose group is present.
func resolveRole(rules []GroupRoleRule, groups []string) (string, bool) {
	for _, rule := range rules {
		for _, group := range groups {
			if strings.EqualFold(rule.IdPGroup, group) {
				return rule.Role, true
			}
		}
	}
	return "", false
}

// resolvePath walks a dot-notation path into nested claim objects. An array
// encountered mid-path resolves to its first element.
func resolvePath(claims map[string]interface{}, path string) (interface{}, bool) {
	// SAML attribute names and ADFS claim URIs contain literal dots, so an
	// exact top-level key match takes precedence over traversal.
	if value, ok := claims[path]; ok {
		return value, true
	}

	var current interface{} = claims
	for _, segment := range strings.Split(path, ".") {
		current = firstIfList(current)
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// resolveString resolves a path to a scalar string. Arrays collapse to
// their first element; numbers and booleans are rendered, matching how IdPs
// occasionally type simple claims.
func resolveString(claims map[string]interface{}, path string) (string, bool) {
	value, ok := resolvePath(claims, path)
	if !ok {
		return "", false
	}
	return scalarString(firstIfList(value))
}

// resolveStringList resolves a path to a list of strings. A scalar value
// becomes a single-element list.
func resolveStringList(claims map[string]interface{}, path string) []string {
	value, ok := resolvePath(claims, path)
	if !ok {
		return nil
	}
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalarString(v); ok && s != "" {
			return []string{s}
		}
		return nil
	}
}

func firstIfList(value interface{}) interface{} {
	switch v := value.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		return v[0]
	case []string:
		if len(v) == 0 {
			return nil
		}
		return v[0]
	default:
		return value
	}
}

func scalarString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "", false
	default:
		return "", false
	}
}
