package instagram

type TypeName string

const (
	TypeNameImage   TypeName = "XDTGraphImage"
	TypeNameVideo   TypeName = "XDTGraphVideo"
	TypeNameSidecar TypeName = "XDTGraphSidecar"
	// Older responses carry the un-prefixed names
	TypeNameLegacySidecar TypeName = "GraphSidecar"
)

type ShortcodeMediaNode struct {
	TypeName     TypeName `json:"__typename"`
	ID           string   `json:"id"`
	Shortcode    string   `json:"shortcode"`
	IsVideo      bool     `json:"is_video"`
	DisplayURL   string   `json:"display_url"`
	VideoURL     string   `json:"video_url,omitempty"`
	ThumbnailSrc string   `json:"thumbnail_src,omitempty"`
}

type SidecarEdge struct {
	Node ShortcodeMediaNode `json:"node"`
}

type SidecarChildren struct {
	Edges []SidecarEdge `json:"edges"`
}

type ShortcodeMedia struct {
	ShortcodeMediaNode
	SidecarChildren *SidecarChildren `json:"edge_sidecar_to_children,omitempty"`
}

func (m ShortcodeMedia) IsSidecar() bool {
	return m.TypeName == TypeNameSidecar || m.TypeName == TypeNameLegacySidecar || m.SidecarChildren != nil
}

/*
The shape changes depending on the outcome:
If the post exists and is visible:

	Data.XDTShortcodeMedia (or Data.ShortcodeMedia on older doc ids) is populated, Status is "ok".

If the post is missing, private or removed:

	Both media fields are null, Status is still "ok".

If the request was refused:

	Status is "fail", Message explains, RequireLogin may be set.
*/
type ShortcodeQueryResponse struct {
	Data struct {
		XDTShortcodeMedia *ShortcodeMedia `json:"xdt_shortcode_media"`
		ShortcodeMedia    *ShortcodeMedia `json:"shortcode_media"`
	} `json:"data"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	RequireLogin bool   `json:"require_login,omitempty"`
}

func (r ShortcodeQueryResponse) Media() *ShortcodeMedia {
	if r.Data.XDTShortcodeMedia != nil {
		return r.Data.XDTShortcodeMedia
	}
	return r.Data.ShortcodeMedia
}
