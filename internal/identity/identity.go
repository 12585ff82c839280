// Package identity canonicalizes addresses and display names so that
// participants can be compared, deduplicated and classified as self.
package identity

import (
	"net/mail"
	"strings"

	"github.com/nhle/mailbox/internal/model"
)

// freeMailDomains ignore dots in the local part.
var freeMailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// Normalize returns the canonical key for an address or a display name.
// Addresses are lower-cased, and dots are stripped from the local part for
// free-mail domains. An address wrapped as "Name <addr>" is reduced to addr.
// Anything else is treated as a name: trimmed and lower-cased.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	addr := s
	if strings.Contains(s, "<") {
		if parsed, err := mail.ParseAddress(s); err == nil {
			addr = parsed.Address
		}
	}

	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return strings.ToLower(s)
	}

	local := strings.ToLower(addr[:at])
	domain := strings.ToLower(addr[at+1:])
	if freeMailDomains[domain] {
		local = strings.ReplaceAll(local, ".", "")
	}
	return local + "@" + domain
}

// IsSelf reports whether candidate refers to the user, by primary address,
// any alias, or display name.
func IsSelf(candidate string, id model.UserIdentity) bool {
	key := Normalize(candidate)
	if key == "" {
		return false
	}
	if key == Normalize(id.Email) || key == Normalize(id.Name) {
		return true
	}
	for _, alias := range id.Aliases {
		if key == Normalize(alias) {
			return true
		}
	}
	return false
}

// Participants deduplicates raw participant strings by canonical key. The
// first spelling seen is kept and insertion order is preserved.
func Participants(raw ...string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		key := Normalize(p)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// Others returns the participants that are not the user.
func Others(participants []string, id model.UserIdentity) []string {
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		if !IsSelf(p, id) {
			out = append(out, p)
		}
	}
	return out
}

// SplitAddressList splits a To/Cc header value into individual addresses.
func SplitAddressList(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if list, err := mail.ParseAddressList(header); err == nil {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.Address)
		}
		return out
	}

	var out []string
	for _, part := range strings.Split(header, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
