package model

import (
	"encoding/json"
	"fmt"
)

// Kind is the media type of a single asset.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

func KindOf(isVideo bool) Kind {
	if isVideo {
		return KindVideo
	}
	return KindImage
}

func (k Kind) IsVideo() bool {
	return k == KindVideo
}

// Extension including the leading dot.
func (k Kind) Extension() string {
	if k == KindVideo {
		return ".mp4"
	}
	return ".jpg"
}

func (k Kind) ContentType() string {
	if k == KindVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}

// Asset is one downloadable unit of a post. DownloadURL is origin-hosted and expires,
// so an Asset is only ever handed back to the caller, never stored.
type Asset struct {
	Kind              Kind
	DownloadURL       string
	PreviewURL        string
	SuggestedFilename string
}

// MarshalJSON flattens Kind into the isVideo flag callers re-submit on stream requests.
func (a Asset) MarshalJSON() ([]byte, error) {
	type wire struct {
		URL        string `json:"url"`
		Filename   string `json:"filename"`
		IsVideo    bool   `json:"isVideo"`
		PreviewURL string `json:"previewUrl,omitempty"`
	}
	return json.Marshal(wire{
		URL:        a.DownloadURL,
		Filename:   a.SuggestedFilename,
		IsVideo:    a.Kind.IsVideo(),
		PreviewURL: a.PreviewURL,
	})
}

// SuggestedFilename builds the download name for an asset. Ordinal is the 1-based position
// inside a carousel; zero means the post has a single asset.
func SuggestedFilename(identifier string, ordinal int, kind Kind) string {
	if ordinal <= 0 {
		return fmt.Sprintf("instagram_%s%s", identifier, kind.Extension())
	}
	return fmt.Sprintf("instagram_%s_%d%s", identifier, ordinal, kind.Extension())
}

// RawAsset is a single asset as reported by a MediaProvider.
type RawAsset struct {
	Kind        Kind
	DownloadURL string
	PreviewURL  string
}

/*
RawPost is the provider's view of a post.
If Children is empty the post is a single asset described by Primary.
If Children is populated the post is a carousel; Primary then only carries the cover.
*/
type RawPost struct {
	Identifier string
	Primary    RawAsset
	Children   []RawAsset
}

func (p RawPost) IsCarousel() bool {
	return len(p.Children) > 0
}
