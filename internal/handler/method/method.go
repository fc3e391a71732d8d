// Package method defines the registry operations handlers can be engaged for.
package method

import "strings"

// Method names a registry operation.
type Method string

const (
	Get                     Method = "GET"
	Put                     Method = "PUT"
	Delete                  Method = "DELETE"
	Import                  Method = "IMPORT"
	PutChild                Method = "PUT_CHILD"
	ImportChild             Method = "IMPORT_CHILD"
	InvokeAspect            Method = "INVOKE_ASPECT"
	Move                    Method = "MOVE"
	Copy                    Method = "COPY"
	Rename                  Method = "RENAME"
	CreateLink              Method = "CREATE_LINK"
	RemoveLink              Method = "REMOVE_LINK"
	AddAssociation          Method = "ADD_ASSOCIATION"
	RemoveAssociation       Method = "REMOVE_ASSOCIATION"
	GetAssociations         Method = "GET_ASSOCIATIONS"
	GetAllAssociations      Method = "GET_ALL_ASSOCIATIONS"
	ApplyTag                Method = "APPLY_TAG"
	GetResourcePathsWithTag Method = "GET_RESOURCE_PATHS_WITH_TAG"
	GetTags                 Method = "GET_TAGS"
	RemoveTag               Method = "REMOVE_TAG"
	AddComment              Method = "ADD_COMMENT"
	EditComment             Method = "EDIT_COMMENT"
	RemoveComment           Method = "REMOVE_COMMENT"
	GetComments             Method = "GET_COMMENTS"
	RateResource            Method = "RATE_RESOURCE"
	GetAverageRating        Method = "GET_AVERAGE_RATING"
	GetRating               Method = "GET_RATING"
	CreateVersion           Method = "CREATE_VERSION"
	GetVersions             Method = "GET_VERSIONS"
	RestoreVersion          Method = "RESTORE_VERSION"
	ExecuteQuery            Method = "EXECUTE_QUERY"
	SearchContent           Method = "SEARCH_CONTENT"
	ResourceExists          Method = "RESOURCE_EXISTS"
	GetRegistryContext      Method = "GET_REGISTRY_CONTEXT"
	Dump                    Method = "DUMP"
	Restore                 Method = "RESTORE"
)

var all = []Method{
	Get, Put, Delete, Import, PutChild, ImportChild, InvokeAspect,
	Move, Copy, Rename, CreateLink, RemoveLink,
	AddAssociation, RemoveAssociation, GetAssociations, GetAllAssociations,
	ApplyTag, GetResourcePathsWithTag, GetTags, RemoveTag,
	AddComment, EditComment, RemoveComment, GetComments,
	RateResource, GetAverageRating, GetRating,
	CreateVersion, GetVersions, RestoreVersion,
	ExecuteQuery, SearchContent, ResourceExists, GetRegistryContext,
	Dump, Restore,
}

var byName = func() map[string]Method {
	m := make(map[string]Method, len(all))
	for _, v := range all {
		m[string(v)] = v
	}
	return m
}()

// All returns every method in declaration order.
func All() []Method {
	out := make([]Method, len(all))
	copy(out, all)
	return out
}

// Parse looks a method up by name, ignoring case and surrounding space.
func Parse(name string) (Method, bool) {
	m, ok := byName[strings.ToUpper(strings.TrimSpace(name))]
	return m, ok
}

// String returns the method name.
func (m Method) String() string {
	return string(m)
}

// PatternProperty is the URL matcher property holding this method's regex,
// e.g. "putPattern" or "putChildPattern".
func (m Method) PatternProperty() string {
	parts := strings.Split(strings.ToLower(string(m)), "_")
	for i := 1; i < len(parts); i++ {
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "") + "Pattern"
}

var reads = map[Method]bool{
	Get: true, GetAssociations: true, GetAllAssociations: true,
	GetResourcePathsWithTag: true, GetTags: true, GetComments: true,
	GetAverageRating: true, GetRating: true, GetVersions: true,
	ExecuteQuery: true, SearchContent: true, ResourceExists: true,
	GetRegistryContext: true, Dump: true,
}

// IsRead reports whether m leaves the registry unchanged.
func (m Method) IsRead() bool {
	return reads[m]
}
