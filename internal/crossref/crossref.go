package crossref

import (
	"net/url"
	"regexp"
	"strings"
)

// projectPattern matches the project segment of a platform deep link
// (e.g., /projects/42 or /proyectos/42).
var projectPattern = regexp.MustCompile(`/(?:projects|proyectos)/([A-Za-z0-9-]+)`)

// entityPattern matches an entity segment nested anywhere in the path.
var entityPattern = regexp.MustCompile(
	`/(incidents|incidencias|materials|materiales|machinery|maquinaria|personnel|personal|documents|documentos)/([A-Za-z0-9-]+)`,
)

// entityTypes maps path segments to the entity type names used by the API.
var entityTypes = map[string]string{
	"incidents":   "INCIDENT",
	"incidencias": "INCIDENT",
	"materials":   "MATERIAL",
	"materiales":  "MATERIAL",
	"machinery":   "MACHINERY",
	"maquinaria":  "MACHINERY",
	"personnel":   "PERSONNEL",
	"personal":    "PERSONNEL",
	"documents":   "DOCUMENT",
	"documentos":  "DOCUMENT",
}

// Ref is the correlation extracted from a deep link.
type Ref struct {
	ProjectID  string
	EntityID   string
	EntityType string
}

// ParseActionURL extracts project and entity references from a notification
// action URL. Absolute URLs, relative paths and hash-routed paths
// (/#/projects/1) are accepted. The last entity segment wins when several
// are nested.
func ParseActionURL(actionURL string) Ref {
	path := actionURL
	if u, err := url.Parse(actionURL); err == nil {
		path = u.Path
		if u.Fragment != "" {
			path += "/" + strings.TrimPrefix(u.Fragment, "/")
		}
	}

	var ref Ref
	if m := projectPattern.FindStringSubmatch(path); m != nil {
		ref.ProjectID = m[1]
	}

	matches := entityPattern.FindAllStringSubmatch(path, -1)
	if len(matches) > 0 {
		last := matches[len(matches)-1]
		ref.EntityType = entityTypes[last[1]]
		ref.EntityID = last[2]
	}

	return ref
}
