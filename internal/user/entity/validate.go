package entity

import (
	"math"
	"net/mail"
	"net/netip"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	MaxUsernameLen  = 30
	MaxEmailLen     = 254
	MaxAuthTokenLen = 48
	MaxNameLen      = 30
)

var (
	usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)
	domainLabel     = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
	topLevelLabel   = regexp.MustCompile(`^(?:[A-Za-z]{2,63}|xn--[A-Za-z0-9]{1,59})$`)
)

// ValidationError collects field level failures.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Validate checks the user against the column constraints.
// It returns nil or a *ValidationError.
func (u *User) Validate() error {
	ve := &ValidationError{}

	switch {
	case u.Username == "":
		ve.add("username", "required")
	case utf8.RuneCountInString(u.Username) > MaxUsernameLen:
		ve.add("username", "at most 30 characters")
	case !usernamePattern.MatchString(u.Username):
		ve.add("username", "enter a valid username")
	}

	if msg := ValidateEmail(u.Email); msg != "" {
		ve.add("email", msg)
	}

	switch {
	case u.AuthToken == "":
		ve.add("authtoken", "required")
	case len(u.AuthToken) > MaxAuthTokenLen:
		ve.add("authtoken", "at most 48 characters")
	}

	if utf8.RuneCountInString(u.FirstName) > MaxNameLen {
		ve.add("first_name", "at most 30 characters")
	}
	if utf8.RuneCountInString(u.LastName) > MaxNameLen {
		ve.add("last_name", "at most 30 characters")
	}

	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// ValidateEmail returns an empty string for a valid bare address, otherwise the reason.
func ValidateEmail(email string) string {
	if email == "" {
		return "required"
	}
	if len(email) > MaxEmailLen {
		return "at most 254 characters"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "enter a valid email address"
	}
	at := strings.LastIndex(email, "@")
	if !validEmailDomain(email[at+1:]) {
		return "enter a valid email address"
	}
	return ""
}

// validEmailDomain accepts localhost, a bracketed IP literal or a hostname
// whose top level label is alphabetic.
func validEmailDomain(domain string) bool {
	if domain == "localhost" {
		return true
	}
	if strings.HasPrefix(domain, "[") && strings.HasSuffix(domain, "]") {
		_, err := netip.ParseAddr(domain[1 : len(domain)-1])
		return err == nil
	}
	labels := strings.Split(strings.TrimSuffix(domain, "."), ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !domainLabel.MatchString(l) {
			return false
		}
	}
	return topLevelLabel.MatchString(labels[len(labels)-1])
}

// Validate checks the profile against the column widths.
func (p *Profile) Validate() error {
	ve := &ValidationError{}
	if utf8.RuneCountInString(p.MybbLoginKey) > MaxMybbLoginKeyLen {
		ve.add("mybb_loginkey", "at most 100 characters")
	}
	if p.MybbUID != nil && !ValidMybbUID(*p.MybbUID) {
		ve.add("mybb_uid", "out of range")
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// ValidMybbUID reports whether uid fits the 32-bit mybb_uid column.
func ValidMybbUID(uid int64) bool {
	return uid >= math.MinInt32 && uid <= math.MaxInt32
}
