// params.go implements the parameter mapping layer: the registry accepts two
// parallel parameter vocabularies — the legacy OAuth 1.0a-era names, which are
// canonical internally, and the modern OAuth 2-era names. UnifyParams folds a
// caller-supplied bag into canonical form and then merges in operation-fixed
// values, which always win so a caller can never spoof context-determined
// fields (such as the owner id or the protocol version of the endpoint they
// hit) through the generic parameter channel.
package consumers

// legacyByModern is the fixed bidirectional mapping table. Modern names on the
// left, canonical legacy names on the right. Parameters absent from the table
// pass through unchanged.
var legacyByModern = map[string]string{
	"client_is_confidential":    "isConfidential",
	"client_is_owner_only":      "isOwnerOnly",
	"client_callback_url":       "callbackUrl",
	"client_callback_is_prefix": "callbackIsPrefix",
	"client_grant_types":        "allowedGrantTypes",
	"client_scopes":             "grants",
	"client_rsa_key":            "rsaKey",
}

var modernByLegacy = invert(legacyByModern)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// UnifyParams maps each modern-named parameter to its canonical legacy name
// and then overlays the operation-fixed values. The fixed merge happens last
// so fixed values win regardless of what the caller supplied under either
// vocabulary for the same key.
//
// When a caller supplies both vocabularies for one key, the canonical name
// wins and the modern duplicate is discarded.
func UnifyParams(params, fixed map[string]string) map[string]string {
	unified := make(map[string]string, len(params)+len(fixed))

	for name, value := range params {
		canonical, mapped := legacyByModern[name]
		if !mapped {
			unified[name] = value
			continue
		}
		if _, dup := params[canonical]; dup {
			continue
		}
		unified[canonical] = value
	}

	for name, value := range fixed {
		unified[name] = value
	}

	return unified
}

// ReverseParams maps the known canonical keys of a unified bag back to their
// modern names. Unknown keys pass through unchanged. Round-trip property:
// ReverseParams(UnifyParams(p, nil)) recovers the modern names for every
// mapped key in p.
func ReverseParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for name, value := range params {
		if modern, mapped := modernByLegacy[name]; mapped {
			out[modern] = value
			continue
		}
		out[name] = value
	}
	return out
}
