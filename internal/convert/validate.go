package convert

import "regexp"

var (
	// acceptedHost matches the recognized video-hosting domains, scheme and
	// subdomain optional.
	acceptedHost = regexp.MustCompile(`^(https?://)?([a-z0-9-]+\.)?(youtube\.com|youtu\.be)/.+`)

	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// maxFilenameLength caps sanitized filename hints.
const maxFilenameLength = 200

// ValidateRequest checks presence and shape of the request URL. It has no
// side effects and runs before any workspace is created.
func ValidateRequest(req Request) error {
	if req.URL == "" {
		return NewError(CategoryInvalidInput, "YouTube URL is required")
	}
	if !acceptedHost.MatchString(req.URL) {
		return NewError(CategoryInvalidInput, "Invalid YouTube URL")
	}
	return nil
}

// SanitizeFilename replaces characters outside the safe set with underscores
// and caps the length. Sanitizing an already-sanitized name is a no-op.
func SanitizeFilename(name string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(sanitized) > maxFilenameLength {
		sanitized = sanitized[:maxFilenameLength]
	}
	return sanitized
}

// OutputBaseName derives the job's output base name: the sanitized caller
// hint (or a fixed prefix) joined with a unique token.
func OutputBaseName(hint, token string) string {
	if hint == "" {
		return "wavforce_" + token
	}
	return SanitizeFilename(hint) + "_" + token
}
