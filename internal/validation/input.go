package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validation limits for share parameters
const (
	MinExpirationDays = 1
	MaxExpirationDays = 365
	MinViewLimit      = 1
	MaxViewLimit      = 1000
	MaxSharedWith     = 256 // display-only recipient field
	MaxFilePathLength = 4096
)

// repoNameRegex matches GitHub owner and repository names
var repoNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

// ValidateShareID validates a share ID from URL parameters.
// Share IDs are UUIDs; anything else is rejected before hitting the database.
func ValidateShareID(shareID string) error {
	if shareID == "" {
		return fmt.Errorf("share_id is required")
	}
	if _, err := uuid.Parse(shareID); err != nil {
		return fmt.Errorf("share_id must be a valid UUID")
	}
	return nil
}

// ValidateRepoName validates a GitHub repository owner or name segment
func ValidateRepoName(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(name) > 100 {
		return fmt.Errorf("%s must be at most 100 characters", field)
	}
	if !repoNameRegex.MatchString(name) {
		return fmt.Errorf("%s contains invalid characters", field)
	}
	return nil
}

// ValidateExpirationDays validates the requested share lifetime in days.
// Zero means no time expiry and is allowed.
func ValidateExpirationDays(days int) error {
	if days == 0 {
		return nil
	}
	if days < MinExpirationDays || days > MaxExpirationDays {
		return fmt.Errorf("expiration_days must be between %d and %d", MinExpirationDays, MaxExpirationDays)
	}
	return nil
}

// ValidateViewLimit validates the requested view limit. Nil means unlimited.
func ValidateViewLimit(limit *int) error {
	if limit == nil {
		return nil
	}
	if *limit < MinViewLimit || *limit > MaxViewLimit {
		return fmt.Errorf("view_limit must be between %d and %d", MinViewLimit, MaxViewLimit)
	}
	return nil
}

// ValidateSharedWith validates the optional recipient field. Accepts either
// an email address or a free-form display name.
func ValidateSharedWith(sharedWith string) error {
	if sharedWith == "" {
		return nil
	}
	if len(sharedWith) > MaxSharedWith {
		return fmt.Errorf("shared_with must be at most %d characters", MaxSharedWith)
	}
	if !utf8.ValidString(sharedWith) {
		return fmt.Errorf("shared_with must be valid UTF-8")
	}
	return nil
}

// ValidateFilePath validates a repository file path from query parameters.
// Rejects traversal segments; the GitHub API would refuse them anyway, but
// they never leave this process.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if len(path) > MaxFilePathLength {
		return fmt.Errorf("path must be at most %d characters", MaxFilePathLength)
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("path must be valid UTF-8")
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must be relative")
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return fmt.Errorf("path must not contain traversal segments")
		}
	}
	return nil
}
