package client

import (
	"strings"
	"unicode"
)

// ToolNameToMethod converts a server tool name into its method form:
// "github_list_repos" becomes "github.listRepos". Names without a plugin
// prefix are returned unchanged.
func ToolNameToMethod(name string) string {
	pluginID, rest, ok := strings.Cut(name, "_")
	if !ok || pluginID == "" || rest == "" {
		return name
	}
	return pluginID + "." + snakeToCamel(rest)
}

// MethodToToolName is the inverse of ToolNameToMethod for tools of pluginID:
// "github.listRepos" becomes "github_list_repos". A method without a plugin
// qualifier is treated as belonging to pluginID.
func MethodToToolName(method, pluginID string) string {
	name := method
	if prefix, rest, ok := strings.Cut(method, "."); ok {
		name = rest
		if pluginID == "" {
			pluginID = prefix
		}
	}
	if pluginID == "" {
		return camelToSnake(name)
	}
	return pluginID + "_" + camelToSnake(name)
}

// snakeToCamel drops an underscore only when a lowercase letter follows it,
// so "get_2fa_status" becomes "get_2faStatus" and stays reversible.
func snakeToCamel(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '_' && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			i++
			b.WriteRune(unicode.ToUpper(runes[i]))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func camelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
