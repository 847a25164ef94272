package instagram

import (
	"fmt"
	"regexp"

	"github.com/truemediaorg/postrelay/model"
)

// regexp to capture the shortcode following a post, reel or tv path segment
var referencePattern = regexp.MustCompile(`/(?:p|reel|tv)/([^/?#]+)`)

// ConstructPostURL is the canonical post URL for a shortcode.
func ConstructPostURL(shortcode string) string {
	return fmt.Sprintf("https://www.instagram.com/p/%s/", shortcode)
}

// Takes in a post reference (a URL) and extracts the shortcode identifying the post.
// This never touches the network; references without a known marker are InvalidReference.
func ExtractShortcode(reference string) (string, error) {
	matches := referencePattern.FindStringSubmatch(reference)
	if matches == nil {
		return "", model.Errorf(model.ClassInvalidReference, "invalid Instagram URL format")
	}
	return matches[1], nil
}
