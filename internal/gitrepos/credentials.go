package gitrepos

import (
	"net/url"
	"strings"
)

// RedactedPlaceholder replaces credentials in diagnostic text.
const RedactedPlaceholder = "********"

// credentialUser is the user name paired with a token in https fetch URLs.
const credentialUser = "x-access-token"

// AuthenticatedURL returns the fetch location with the credential embedded.
// Only https references carry credentials. The result must never be logged or stored.
func AuthenticatedURL(ref RepoRef, credential string) string {
	if credential == "" || ref.Scheme != SchemeHTTPS {
		return ref.CloneURL
	}
	u, err := url.Parse(ref.CloneURL)
	if err != nil {
		return ref.CloneURL
	}
	u.User = url.UserPassword(credentialUser, credential)
	return u.String()
}

// Redact removes every occurrence of secret from text, including its URL-escaped forms.
func Redact(text, secret string) string {
	if secret == "" || text == "" {
		return text
	}
	forms := []string{secret, url.QueryEscape(secret), url.PathEscape(secret)}
	if u := url.UserPassword(credentialUser, secret).String(); u != "" {
		// userinfo escaping differs from path and query escaping
		if _, pass, ok := strings.Cut(u, ":"); ok {
			forms = append(forms, pass)
		}
	}
	for _, f := range forms {
		if f != "" {
			text = strings.ReplaceAll(text, f, RedactedPlaceholder)
		}
	}
	return text
}

// SafeURL strips user info from a URL so it can be logged.
// Unparseable input is returned with anything before '@' removed.
func SafeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		if _, after, ok := strings.Cut(raw, "@"); ok && strings.Contains(raw, "://") {
			return after
		}
		return raw
	}
	u.User = nil
	return u.String()
}
