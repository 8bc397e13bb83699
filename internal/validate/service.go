package validate

import (
	"fmt"
	"regexp"
)

// appIDRe matches DNS-label-style app ids: 1-63 lowercase alphanumeric or
// hyphens, starting and ending with alphanumeric. Keeps an app_id safe to
// use as a gossip message field and a log/metric label.
var appIDRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// AppID checks that a broadcast app_id is DNS-label safe.
func AppID(name string) error {
	if name == "" {
		return fmt.Errorf("%w: app_id cannot be empty", ErrInvalidAppID)
	}
	if !appIDRe.MatchString(name) {
		return fmt.Errorf("%w: %q must be 1-63 lowercase alphanumeric characters or hyphens, starting and ending with alphanumeric", ErrInvalidAppID, name)
	}
	return nil
}
