package model

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
)

// Preference steers which carousel item is picked when only one is wanted.
type Preference string

const (
	PreferenceAny   Preference = "Any"
	PreferenceImage Preference = "ImagePreferred"
	PreferenceVideo Preference = "VideoPreferred"
)

var preferenceNames = map[string]Preference{
	"":               PreferenceAny,
	"any":            PreferenceAny,
	"imagepreferred": PreferenceImage,
	"image":          PreferenceImage,
	"videopreferred": PreferenceVideo,
	"video":          PreferenceVideo,
}

// ParsePreference accepts the canonical names case-insensitively, plus the short forms
// "any", "image" and "video". An empty string means PreferenceAny.
func ParsePreference(s string) (Preference, error) {
	if p, ok := preferenceNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p, nil
	}
	names := maps.Keys(preferenceNames)
	sort.Strings(names)
	return PreferenceAny, fmt.Errorf("unknown preference %q (expected one of %s)", s, strings.Join(names[1:], ", "))
}

// Wants reports whether the kind satisfies the preference. PreferenceAny matches nothing
// so the default (first) item is kept.
func (p Preference) Wants(kind Kind) bool {
	switch p {
	case PreferenceImage:
		return kind == KindImage
	case PreferenceVideo:
		return kind == KindVideo
	default:
		return false
	}
}

// Noun is the kind name used in selection labels, empty for PreferenceAny.
func (p Preference) Noun() string {
	switch p {
	case PreferenceImage:
		return "image"
	case PreferenceVideo:
		return "video"
	default:
		return ""
	}
}

type SelectionMode int

const (
	ModeSelectOne SelectionMode = iota
	ModeSelectAll
)

func (m SelectionMode) String() string {
	if m == ModeSelectAll {
		return "all"
	}
	return "one"
}

// Selection tells the resolver whether to pick one carousel item or return all of them.
type Selection struct {
	Mode       SelectionMode
	Preference Preference
}

func SelectOne(preference Preference) Selection {
	return Selection{Mode: ModeSelectOne, Preference: preference}
}

func SelectAll() Selection {
	return Selection{Mode: ModeSelectAll, Preference: PreferenceAny}
}
