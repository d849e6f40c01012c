package transform

import "strings"

// ResolveUsers implements the "enhanced transformer" extension (spec
// §9): a second optional pass over the base transformer's Users list
// that mutates placeholder tokens in content by exact-string
// replacement. It composes a resolver function rather than requiring a
// transformer subclass or variant.
func ResolveUsers(content string, users []UserRef, resolve func(UserRef) (displayName string, ok bool)) string {
	for _, u := range users {
		name, ok := resolve(u)
		if !ok || name == "" {
			continue
		}
		content = strings.ReplaceAll(content, u.Token, name)
	}
	return content
}
