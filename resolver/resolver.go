package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/truemediaorg/postrelay/instagram"
	"github.com/truemediaorg/postrelay/model"

	log "github.com/sirupsen/logrus"
)

// MediaProvider returns the raw structure of a post. Errors should be *model.Error values;
// anything unclassified is treated as UpstreamTransient.
type MediaProvider interface {
	FetchPost(ctx context.Context, identifier string) (*model.RawPost, error)
}

type Resolver struct {
	provider MediaProvider
	pacing   time.Duration
}

// NewResolver wires a provider with the fixed delay waited out before every provider call.
func NewResolver(provider MediaProvider, pacing time.Duration) *Resolver {
	return &Resolver{
		provider: provider,
		pacing:   pacing,
	}
}

// Resolve extracts the identifier from reference and resolves it. Invalid references fail
// before any waiting or network call.
func (r *Resolver) Resolve(ctx context.Context, reference string, selection model.Selection) (*model.ResolutionResult, error) {
	identifier, err := instagram.ExtractShortcode(reference)
	if err != nil {
		return nil, err
	}
	return r.ResolveIdentifier(ctx, identifier, selection)
}

func (r *Resolver) ResolveIdentifier(ctx context.Context, identifier string, selection model.Selection) (*model.ResolutionResult, error) {
	if err := r.pace(ctx); err != nil {
		return nil, model.NewError(model.ClassUpstreamTransient, "resolution cancelled", err)
	}

	post, err := r.provider.FetchPost(ctx, identifier)
	if err != nil {
		if model.ClassOf(err) == model.ClassUnknown {
			err = model.NewError(model.ClassUpstreamTransient, "post lookup failed", err)
		}
		log.WithField("identifier", identifier).WithField("class", model.ClassOf(err)).Warnf("post lookup failed: %v", err)
		return nil, err
	}

	result := buildResult(identifier, *post, selection)
	log.WithField("identifier", identifier).WithField("assets", len(result.Assets)).Infof("resolved post: %s", result.SelectionLabel)
	return result, nil
}

// pace waits out the pacing interval unless the context ends first.
func (r *Resolver) pace(ctx context.Context) error {
	if r.pacing <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func buildResult(identifier string, post model.RawPost, selection model.Selection) *model.ResolutionResult {
	// A carousel holding a single item is handled like a plain post
	if len(post.Children) == 1 {
		post.Primary = post.Children[0]
		post.Children = nil
	}

	if !post.IsCarousel() {
		asset := toAsset(identifier, 0, post.Primary)
		return &model.ResolutionResult{
			Assets:            []model.Asset{asset},
			IsMultiAsset:      false,
			SelectionLabel:    string(asset.Kind),
			PrimaryPreviewURL: asset.PreviewURL,
		}
	}

	total := len(post.Children)
	if selection.Mode == model.ModeSelectAll {
		assets := make([]model.Asset, 0, total)
		for i, child := range post.Children {
			assets = append(assets, toAsset(identifier, i+1, child))
		}
		return &model.ResolutionResult{
			Assets:            assets,
			IsMultiAsset:      true,
			SelectionLabel:    fmt.Sprintf("carousel, all %d items", total),
			PrimaryPreviewURL: assets[0].PreviewURL,
		}
	}

	index, matched := selectIndex(post.Children, selection.Preference)
	asset := toAsset(identifier, index+1, post.Children[index])
	return &model.ResolutionResult{
		Assets:            []model.Asset{asset},
		IsMultiAsset:      true,
		SelectionLabel:    describeSelection(index, total, asset.Kind, selection.Preference, matched),
		PrimaryPreviewURL: asset.PreviewURL,
	}
}

// selectIndex returns the first child matching the preference, or the first child.
func selectIndex(children []model.RawAsset, preference model.Preference) (int, bool) {
	for i, child := range children {
		if preference.Wants(child.Kind) {
			return i, true
		}
	}
	return 0, false
}

func describeSelection(index int, total int, kind model.Kind, preference model.Preference, matched bool) string {
	parts := []string{"carousel", fmt.Sprintf("item %d of %d", index+1, total)}
	noun := preference.Noun()
	switch {
	case noun == "":
		parts = append(parts, string(kind))
	case matched:
		parts = append(parts, noun+" preferred")
	default:
		parts = append(parts, fmt.Sprintf("no %s found, using first item", noun))
	}
	return strings.Join(parts, ", ")
}

func toAsset(identifier string, ordinal int, raw model.RawAsset) model.Asset {
	return model.Asset{
		Kind:              raw.Kind,
		DownloadURL:       raw.DownloadURL,
		PreviewURL:        raw.PreviewURL,
		SuggestedFilename: model.SuggestedFilename(identifier, ordinal, raw.Kind),
	}
}
