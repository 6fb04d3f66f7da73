package domain

import "strings"

// UserSuffix is the session-address suffix of a user chat.
const UserSuffix = "@c.us"

// NormalizeAddress appends UserSuffix unless the identifier already carries it.
func NormalizeAddress(id string) string {
	if strings.Contains(id, UserSuffix) {
		return id
	}
	return id + UserSuffix
}

// StripAddress removes UserSuffix from a session address.
func StripAddress(id string) string {
	return strings.ReplaceAll(id, UserSuffix, "")
}
