package flume

import (
	"fmt"
	"regexp"

	flerrs "github.com/jdholdren/flume/errors"
)

// Feed slugs and user ids share the same restricted charset. A colon can
// never appear: it's the separator inside a composite feed id.
var idCharset = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateFeedSlug checks that a feed slug is non-empty and within the
// allowed charset.
func ValidateFeedSlug(slug string) error {
	if slug == "" {
		return flerrs.E(flerrs.KindValidation, "feed slug is required", flerrs.Detail{Field: "feedSlug", Error: "must not be empty"})
	}
	if !idCharset.MatchString(slug) {
		return flerrs.E(
			flerrs.KindValidation,
			fmt.Sprintf("invalid feed slug %q", slug),
			flerrs.Detail{Field: "feedSlug", Error: "may only contain alphanumerics, underscores and dashes"},
		)
	}

	return nil
}

// ValidateUserID checks that a user id is non-empty and within the
// allowed charset.
func ValidateUserID(userID string) error {
	if userID == "" {
		return flerrs.E(flerrs.KindValidation, "user id is required", flerrs.Detail{Field: "userID", Error: "must not be empty"})
	}
	if !idCharset.MatchString(userID) {
		return flerrs.E(
			flerrs.KindValidation,
			fmt.Sprintf("invalid user id %q", userID),
			flerrs.Detail{Field: "userID", Error: "may only contain alphanumerics, underscores and dashes"},
		)
	}

	return nil
}
