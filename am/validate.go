package am

import (
	"net/url"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/version"
)

// Validate checks that the configuration is usable. A missing remote base
// URL is allowed here; commands that reach the remote check it themselves.
func (c *Config) Validate() error {
	if c.Remote.BaseURL != "" {
		u, err := url.Parse(c.Remote.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.WithHint(
				errors.Newf("remote.base_url %q is not an http(s) URL", c.Remote.BaseURL),
				"use e.g. https://example.atlassian.net/wiki")
		}
	}
	if c.Remote.TimeoutSeconds < 0 {
		return errors.Newf("remote.timeout_seconds must be >= 0, got %d", c.Remote.TimeoutSeconds)
	}
	if c.Remote.Burst < 0 {
		return errors.Newf("remote.burst must be >= 0, got %d", c.Remote.Burst)
	}

	// 0 selects the default interval
	if c.Poll.IntervalSeconds < 0 {
		return errors.Newf("poll.interval_seconds must be >= 0, got %d", c.Poll.IntervalSeconds)
	}
	switch c.Poll.Scope.Kind {
	case "", "space":
	case "page", "tree":
		if c.Poll.Scope.ID == "" {
			return errors.Newf("poll.scope.id is required for a %s scope", c.Poll.Scope.Kind)
		}
	default:
		return errors.WithHint(
			errors.Newf("unknown poll.scope.kind %q", c.Poll.Scope.Kind),
			"use page, tree or space")
	}

	if c.Validation.MaxDocumentBytes < -1 {
		return errors.Newf("validate.max_document_bytes must be >= -1, got %d", c.Validation.MaxDocumentBytes)
	}

	if c.MinVersion != "" {
		ok, err := version.AtLeast(c.MinVersion)
		if err != nil {
			return errors.Wrapf(err, "min_version %q", c.MinVersion)
		}
		if !ok {
			return errors.WithHintf(
				errors.Newf("configuration requires pagesync %s or newer, running %s", c.MinVersion, version.Version),
				"upgrade pagesync or lower min_version")
		}
	}
	return nil
}
