package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/truemediaorg/postrelay/model"
	"github.com/truemediaorg/postrelay/relay"

	log "github.com/sirupsen/logrus"
)

const (
	// Persisted query returning xdt_shortcode_media for a shortcode
	DefaultDocID = "8845758582119845"
	// Web app id sent by instagram.com itself
	DefaultAppID = "936619743392459"
)

type ClientOptions struct {
	DocID      string
	AppID      string
	SessionID  string
	Identities relay.IdentityPool
	HTTPClient *http.Client
}

// Client fetches post metadata from Instagram's web GraphQL endpoint.
type Client struct {
	baseURL    string
	docID      string
	appID      string
	sessionID  string
	identities relay.IdentityPool
	HTTPClient *http.Client
}

func NewClient(baseURL url.URL, opts ClientOptions) *Client {
	c := &Client{
		baseURL:    baseURL.String(),
		docID:      opts.DocID,
		appID:      opts.AppID,
		sessionID:  opts.SessionID,
		identities: opts.Identities,
		HTTPClient: opts.HTTPClient,
	}
	if c.docID == "" {
		c.docID = DefaultDocID
	}
	if c.appID == "" {
		c.appID = DefaultAppID
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return c
}

func (c Client) FetchPost(ctx context.Context, shortcode string) (*model.RawPost, error) {
	queryURL, err := url.Parse(c.baseURL + "/graphql/query")
	if err != nil {
		return nil, model.NewError(model.ClassUpstreamTransient, "bad provider URL", err)
	}
	variables, err := json.Marshal(map[string]string{"shortcode": shortcode})
	if err != nil {
		return nil, model.NewError(model.ClassUpstreamTransient, "encoding query variables", err)
	}
	q := queryURL.Query()
	q.Add("doc_id", c.docID)
	q.Add("variables", string(variables))
	queryURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL.String(), nil)
	if err != nil {
		return nil, model.NewError(model.ClassUpstreamTransient, "building provider request", err)
	}
	req.Header.Add("User-Agent", c.identities.Pick())
	req.Header.Add("X-IG-App-ID", c.appID)
	req.Header.Add("Accept", "application/json")
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.sessionID})
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, model.NewError(model.ClassUpstreamTransient, "post lookup failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewError(model.ClassUpstreamTransient, "reading post lookup response", err)
	}

	var sqr ShortcodeQueryResponse
	if err = json.Unmarshal(body, &sqr); err != nil {
		return nil, model.NewError(model.ClassUpstreamTransient, "unreadable post lookup response", err)
	}

	if sqr.Status == "fail" {
		if sqr.RequireLogin {
			return nil, model.Errorf(model.ClassUpstreamBlocked, "post lookup refused: %s", sqr.Message)
		}
		return nil, model.Errorf(model.ClassUpstreamTransient, "post lookup failed: %s", sqr.Message)
	}

	media := sqr.Media()
	if media == nil {
		return nil, model.Errorf(model.ClassUpstreamNotFound, "post not found, or private, or removed")
	}
	log.WithField("shortcode", shortcode).WithField("typename", media.TypeName).Debug("post lookup succeeded")
	return toRawPost(shortcode, *media)
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return model.Errorf(model.ClassUpstreamNotFound, "post not found, or private, or removed")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.Errorf(model.ClassUpstreamBlocked, "post lookup refused with status %d", status)
	case status == http.StatusTooManyRequests:
		return model.Errorf(model.ClassUpstreamTransient, "post lookup rate limited")
	default:
		return model.Errorf(model.ClassUpstreamTransient, "post lookup returned status %d", status)
	}
}

func toRawPost(shortcode string, media ShortcodeMedia) (*model.RawPost, error) {
	post := &model.RawPost{
		Identifier: shortcode,
		Primary:    toRawAsset(media.ShortcodeMediaNode),
	}
	if !media.IsSidecar() {
		if post.Primary.DownloadURL == "" {
			return nil, model.Errorf(model.ClassUpstreamNotFound, "unsupported media type or post restriction detected")
		}
		return post, nil
	}
	if media.SidecarChildren == nil || len(media.SidecarChildren.Edges) == 0 {
		return nil, model.Errorf(model.ClassUpstreamNotFound, "unsupported media type or post restriction detected")
	}
	for i, edge := range media.SidecarChildren.Edges {
		child := toRawAsset(edge.Node)
		if child.DownloadURL == "" {
			return nil, model.NewError(model.ClassUpstreamTransient, "carousel item has no media URL", fmt.Errorf("item %d of %s", i+1, shortcode))
		}
		post.Children = append(post.Children, child)
	}
	return post, nil
}

func toRawAsset(node ShortcodeMediaNode) model.RawAsset {
	asset := model.RawAsset{
		Kind:        model.KindOf(node.IsVideo),
		DownloadURL: node.DisplayURL,
		PreviewURL:  node.DisplayURL,
	}
	if node.IsVideo {
		asset.DownloadURL = node.VideoURL
	}
	if asset.PreviewURL == "" {
		asset.PreviewURL = node.ThumbnailSrc
	}
	return asset
}
