package identity

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const gravatarBase = "https://www.gravatar.com/avatar/"

// AvatarURL returns the Gravatar identicon URL for an address.
func AvatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return gravatarBase + hex.EncodeToString(sum[:]) + "?d=identicon"
}

// Photo returns photo when set, otherwise the Gravatar URL of email.
func Photo(photo, email string) string {
	if photo != "" {
		return photo
	}
	if email == "" {
		return ""
	}
	return AvatarURL(email)
}
