package client

import (
	"regexp"
	"strings"
)

var (
	impersonateUnavailablePattern = regexp.MustCompile(`(?i)Impersonate target .* is not available`)
	antiBotPattern                = regexp.MustCompile(`(?i)Sign in to confirm you['’]re not a bot`)
	secretStoragePattern          = regexp.MustCompile(`(?i)secretstorage not available`)
	cookieDatabasePattern         = regexp.MustCompile(`(?i)could not find .* cookies database`)
	preconditionPattern           = regexp.MustCompile(`(?i)Precondition check failed|not available on this app`)
)

// Classify maps the combined stderr of every failed extractor attempt onto
// an error kind. Signatures are checked in a fixed priority order.
func Classify(stderr string) ErrorKind {
	antiBot := antiBotPattern.MatchString(stderr)
	secretStorage := secretStoragePattern.MatchString(stderr)

	switch {
	case antiBot && secretStorage:
		return KindUpstreamBlockedCredentialStore
	case antiBot:
		return KindUpstreamBlocked
	case secretStorage:
		return KindCredentialStore
	case cookieDatabasePattern.MatchString(stderr):
		return KindCredentialDatabaseNotFound
	case preconditionPattern.MatchString(stderr):
		return KindUpstreamPrecondition
	default:
		return KindToolInvocation
	}
}

func impersonationUnavailable(stderr string) bool {
	return impersonateUnavailablePattern.MatchString(stderr)
}

// classifiedError builds the error raised once every extraction strategy
// has failed. lastStderr is used verbatim for unclassified failures.
func classifiedError(tool string, allStderr []string, lastStderr string) *ToolError {
	combined := strings.Join(allStderr, "\n")
	kind := Classify(combined)
	err := &ToolError{Kind: kind, Tool: tool, Stderr: strings.TrimSpace(lastStderr)}

	switch kind {
	case KindUpstreamBlockedCredentialStore:
		err.Message = "YouTube required sign-in and reading browser cookies failed (secretstorage). " +
			"Install the keyring backend in the same Python as yt-dlp (python3 -m pip install secretstorage keyring) " +
			"or set YTDLP_COOKIES_FILE to an exported cookies.txt."
	case KindUpstreamBlocked:
		err.Message = "YouTube blocked the request. Refresh or regenerate cookies.txt and try again. " +
			"Browser cookies, impersonate=chrome and alternate player clients were already tried."
	case KindCredentialStore:
		err.Message = "Could not read browser cookies. Install the keyring backend in the same Python as yt-dlp " +
			"(python3 -m pip install secretstorage keyring) or set YTDLP_COOKIES_FILE to an exported cookies.txt."
	case KindCredentialDatabaseNotFound:
		err.Message = "Browser cookies were not found for the current user. Run the server as your normal user " +
			"(not via sudo) or set YTDLP_COOKIES_FILE to a valid cookies.txt."
	case KindUpstreamPrecondition:
		err.Message = "YouTube refused the default client for this video. Update yt-dlp and export a fresh cookies.txt; " +
			"alternate clients were already tried."
	default:
		err.Message = strings.TrimSpace(lastStderr)
		if err.Message == "" {
			err.Message = "failed to run " + tool
		}
	}
	return err
}
