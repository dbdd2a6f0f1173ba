// grants.go defines the grant vocabulary consumers may register for and the
// OAuth 2 grant types the modern protocol variant accepts. Grants are named
// permission bundles; an access token always carries a subset of its consumer's
// registered grants.
package consumers

// Known grants, roughly ordered from benign to sensitive.
var knownGrants = map[string]bool{
	"basic":               true,
	"highvolume":          true,
	"editpage":            true,
	"editprotected":       true,
	"createeditmovepage":  true,
	"uploadfile":          true,
	"uploadeditmovefile":  true,
	"patrol":              true,
	"rollback":            true,
	"blockusers":          true,
	"delete":              true,
	"protect":             true,
	"sendemail":           true,
	"privateinfo":         true,
	"editmycssjs":         true,
	"editmywatchlist":     true,
	"viewmywatchlist":     true,
	"createaccount":       true,
	"mergehistory":        true,
	"oversight":           true,
}

// Known OAuth 2 grant types.
var knownGrantTypes = map[string]bool{
	"authorization_code": true,
	"refresh_token":      true,
	"client_credentials": true,
}

// ValidGrant reports whether name is a registered grant.
func ValidGrant(name string) bool {
	return knownGrants[name]
}

// ValidGrantType reports whether name is a recognized OAuth 2 grant type.
func ValidGrantType(name string) bool {
	return knownGrantTypes[name]
}

// grantsSubset reports whether every element of sub appears in super.
func grantsSubset(sub, super []string) bool {
	set := make(map[string]bool, len(super))
	for _, g := range super {
		set[g] = true
	}
	for _, g := range sub {
		if !set[g] {
			return false
		}
	}
	return true
}
