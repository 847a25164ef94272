package model

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Upper bound on entries in one stream request; carousels top out well below this.
const MaxStreamAssets = 50

// StreamAsset is an asset as re-submitted by a caller. IsVideo is a pointer so a missing
// kind flag can be told apart from an image.
type StreamAsset struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	IsVideo  *bool  `json:"isVideo"`
}

type StreamRequest struct {
	Assets   []StreamAsset `json:"assets"`
	Filename string        `json:"filename"`
}

// Validate checks the request shape before any network I/O and converts it to assets.
// Entries without their own filename are named after the request filename and their position.
func (r StreamRequest) Validate() ([]Asset, error) {
	if strings.TrimSpace(r.Filename) == "" {
		return nil, Errorf(ClassMalformedStreamRequest, "missing filename")
	}
	if len(r.Assets) == 0 {
		return nil, Errorf(ClassMalformedStreamRequest, "no assets to stream")
	}
	if len(r.Assets) > MaxStreamAssets {
		return nil, Errorf(ClassMalformedStreamRequest, "too many assets (%d > %d)", len(r.Assets), MaxStreamAssets)
	}

	stem := strings.TrimSuffix(path.Base(r.Filename), path.Ext(r.Filename))
	assets := make([]Asset, 0, len(r.Assets))
	for i, sa := range r.Assets {
		if sa.IsVideo == nil {
			return nil, Errorf(ClassMalformedStreamRequest, "asset %d is missing isVideo", i+1)
		}
		if err := validateOriginURL(sa.URL); err != nil {
			return nil, NewError(ClassMalformedStreamRequest, fmt.Sprintf("asset %d has an invalid url", i+1), err)
		}
		kind := KindOf(*sa.IsVideo)
		filename := sa.Filename
		if filename == "" {
			filename = fmt.Sprintf("%s_%d%s", stem, i+1, kind.Extension())
		}
		assets = append(assets, Asset{
			Kind:              kind,
			DownloadURL:       sa.URL,
			SuggestedFilename: filename,
		})
	}
	return assets, nil
}

// WantsArchive is true for multi-asset requests and for filenames naming a zip.
func (r StreamRequest) WantsArchive() bool {
	return len(r.Assets) > 1 || strings.EqualFold(path.Ext(r.Filename), ".zip")
}

// ArchiveFilename forces a .zip extension onto name.
func ArchiveFilename(name string) string {
	if strings.EqualFold(path.Ext(name), ".zip") {
		return name
	}
	return name + ".zip"
}

func validateOriginURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
