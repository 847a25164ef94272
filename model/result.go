package model

// ResolutionResult is built fresh for every resolve call and never mutated afterwards.
// Callers get it serialized and re-submit Assets on a later stream request.
type ResolutionResult struct {
	Assets            []Asset `json:"assets"`
	IsMultiAsset      bool    `json:"isMultiAsset"`
	SelectionLabel    string  `json:"selectionLabel"`
	PrimaryPreviewURL string  `json:"primaryPreviewURL"`
}
