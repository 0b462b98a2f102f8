package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nijaru/yt-transcript/errors"
)

var (
	videoIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)
	languagePattern = regexp.MustCompile(`^[A-Za-z]{2,8}([-_][A-Za-z0-9]{1,8})*$`)
)

// NormalizeVideoID accepts a bare video ID or a watch, short, embed or
// youtu.be URL and returns the video ID.
func NormalizeVideoID(input string) (string, error) {
	const op = "validation.NormalizeVideoID"

	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.InvalidInput(op, nil, "video ID is required")
	}

	id := input
	if strings.Contains(input, "/") || strings.Contains(input, "?") {
		var err error
		if id, err = idFromURL(input); err != nil {
			return "", errors.InvalidInput(op, err, "invalid video URL")
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", errors.InvalidInput(op, nil, "invalid video ID")
	}
	return id, nil
}

func idFromURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.InvalidInput("validation.idFromURL", nil, "URL must use HTTP or HTTPS")
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch host {
	case "youtu.be":
		return segments[0], nil
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			return v, nil
		}
		if len(segments) == 2 {
			switch segments[0] {
			case "shorts", "embed", "live", "v":
				return segments[1], nil
			}
		}
		return "", errors.InvalidInput("validation.idFromURL", nil, "URL does not contain a video ID")
	default:
		return "", errors.InvalidInput("validation.idFromURL", nil, "only YouTube URLs are supported")
	}
}

// ValidateLanguage checks that lang looks like a language tag. An empty
// value is allowed and means the default language.
func ValidateLanguage(lang string) error {
	const op = "validation.ValidateLanguage"

	lang = strings.TrimSpace(lang)
	if lang == "" {
		return nil
	}
	if !languagePattern.MatchString(lang) {
		return errors.InvalidInput(op, nil, "invalid language code")
	}
	return nil
}
