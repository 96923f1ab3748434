package domain

import "regexp"

// nicknamePattern is the accepted shape of a public nickname.
var nicknamePattern = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// User is an account that owns a collection.
type User struct {
	Syncable
	Nickname string `json:"nickname"`
	// LibraryVisible lets accepted contacts browse this user's collection.
	LibraryVisible bool `json:"library_visible"`
}

// ValidNickname reports whether nickname matches the accepted pattern.
func ValidNickname(nickname string) bool {
	return nicknamePattern.MatchString(nickname)
}
