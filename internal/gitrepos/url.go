package gitrepos

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sha1n/mcp-repo-ingest/internal/domain"
)

// Scheme identifies how a repository is fetched.
type Scheme string

const (
	SchemeHTTPS Scheme = "https"
	// SchemeHTTP is plaintext and never carries credentials.
	SchemeHTTP Scheme = "http"
	SchemeSSH  Scheme = "ssh"
	SchemeFile  Scheme = "file"
)

var (
	// Matches: git@github.com:org/repo.git or git@github.com:org/subgroup/repo.git
	sshScpPattern = regexp.MustCompile(`^git@([^:/]+):(.+?)(?:\.git)?/?$`)

	// Matches: ssh://git@github.com/org/repo.git
	sshURLPattern = regexp.MustCompile(`^ssh://git@([^/]+)/(.+?)(?:\.git)?/?$`)

	segmentPattern = regexp.MustCompile(`^[\w.-]+$`)
)

// URLPolicy restricts which repository locations are accepted.
type URLPolicy struct {
	// AllowedHosts limits https and ssh hosts (case-insensitive). Empty allows any host.
	AllowedHosts []string

	// AllowLocal permits file:// URLs and absolute local paths.
	AllowLocal bool
}

// RepoRef is a parsed, credential-free repository location.
type RepoRef struct {
	Scheme Scheme
	Host   string
	// Path is the slash-separated repository path without a .git suffix.
	// Example: "org/repo", "group/sub/repo", or an absolute path for local repositories.
	Path string
	// CloneURL is the normalized fetch location without any credentials.
	CloneURL string
}

// ID returns the filesystem-safe repository identity.
//
// Examples:
//   - https://github.com/org/repo -> org_repo
//   - git@gitlab.com:group/sub/repo.git -> group_sub_repo
//   - file:///srv/git/tools -> local_tools
func (r RepoRef) ID() string {
	if r.Scheme == SchemeFile {
		return "local_" + sanitizeSegment(filepath.Base(r.Path))
	}
	return sanitizeSegment(strings.ReplaceAll(r.Path, "/", "_"))
}

// Key returns the canonical location used to derive collection identities.
// Two URLs for the same repository (with or without .git, trailing slash, or
// host casing differences) share a key.
func (r RepoRef) Key() string {
	if r.Scheme == SchemeFile {
		return "file://" + r.Path
	}
	return strings.ToLower(r.Host) + "/" + r.Path
}

// Display returns a human-readable location.
func (r RepoRef) Display() string {
	if r.Scheme == SchemeFile {
		return r.Path
	}
	return strings.ToLower(r.Host) + "/" + r.Path
}

// ParseRepoURL validates a repository locator and returns its reference.
// All failures wrap domain.ErrInvalidIdentity.
func ParseRepoURL(raw string, policy URLPolicy) (RepoRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RepoRef{}, fmt.Errorf("%w: empty repository URL", domain.ErrInvalidIdentity)
	}

	if m := sshScpPattern.FindStringSubmatch(raw); m != nil {
		return newRemoteRef(SchemeSSH, m[1], m[2], policy)
	}
	if m := sshURLPattern.FindStringSubmatch(raw); m != nil {
		return newRemoteRef(SchemeSSH, m[1], m[2], policy)
	}

	if filepath.IsAbs(raw) && !strings.Contains(raw, "://") {
		return newLocalRef(raw, policy)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return RepoRef{}, fmt.Errorf("%w: %s", domain.ErrInvalidIdentity, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "http":
		if u.User != nil {
			return RepoRef{}, fmt.Errorf("%w: credentials must not be embedded in the URL", domain.ErrInvalidIdentity)
		}
		if u.RawQuery != "" || u.Fragment != "" {
			return RepoRef{}, fmt.Errorf("%w: query and fragment are not allowed", domain.ErrInvalidIdentity)
		}
		scheme := SchemeHTTPS
		if strings.EqualFold(u.Scheme, "http") {
			scheme = SchemeHTTP
		}
		return newRemoteRef(scheme, u.Host, strings.Trim(u.Path, "/"), policy)
	case "file":
		return newLocalRef(u.Path, policy)
	default:
		return RepoRef{}, fmt.Errorf("%w: unsupported URL scheme %q", domain.ErrInvalidIdentity, u.Scheme)
	}
}

func newRemoteRef(scheme Scheme, host, path string, policy URLPolicy) (RepoRef, error) {
	if host == "" {
		return RepoRef{}, fmt.Errorf("%w: missing host", domain.ErrInvalidIdentity)
	}
	if !hostAllowed(host, policy.AllowedHosts) {
		return RepoRef{}, fmt.Errorf("%w: host %q is not allowed", domain.ErrInvalidIdentity, host)
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return RepoRef{}, fmt.Errorf("%w: expected owner/name path, got %q", domain.ErrInvalidIdentity, path)
	}
	for _, s := range segments {
		if !segmentPattern.MatchString(s) || s == "." || s == ".." {
			return RepoRef{}, fmt.Errorf("%w: invalid path segment %q", domain.ErrInvalidIdentity, s)
		}
	}

	ref := RepoRef{Scheme: scheme, Host: host, Path: path}
	switch scheme {
	case SchemeSSH:
		ref.CloneURL = "git@" + host + ":" + path + ".git"
	case SchemeHTTP:
		ref.CloneURL = "http://" + strings.ToLower(host) + "/" + path + ".git"
	default:
		ref.CloneURL = "https://" + strings.ToLower(host) + "/" + path + ".git"
	}
	return ref, nil
}

func newLocalRef(path string, policy URLPolicy) (RepoRef, error) {
	if !policy.AllowLocal {
		return RepoRef{}, fmt.Errorf("%w: local repositories are not allowed", domain.ErrInvalidIdentity)
	}
	if path == "" || !filepath.IsAbs(path) {
		return RepoRef{}, fmt.Errorf("%w: local repository path must be absolute", domain.ErrInvalidIdentity)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	return RepoRef{
		Scheme:   SchemeFile,
		Path:     clean,
		CloneURL: "file://" + clean,
	}, nil
}

func hostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, h := range allowed {
		if strings.EqualFold(strings.TrimSpace(h), host) {
			return true
		}
	}
	return false
}

// sanitizeSegment converts a string to a filesystem-safe format.
func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
