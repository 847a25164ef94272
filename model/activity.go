package model

import (
	"time"

	"github.com/truemediaorg/postrelay/database/db"
)

// OutcomeOK is recorded in place of an error class for successful operations.
const OutcomeOK = "OK"

func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return string(ClassOf(err))
}

type ResolutionActivity struct {
	ID         string
	Identifier string
	Selection  Selection
	AssetCount int
	Outcome    string
	Resolved   time.Time
}

func ResolutionActivityFromLog(rl db.ResolutionLog) (*ResolutionActivity, error) {
	preference, err := ParsePreference(rl.Preference)
	if err != nil {
		return nil, err
	}
	mode := ModeSelectOne
	if rl.Mode == ModeSelectAll.String() {
		mode = ModeSelectAll
	}
	return &ResolutionActivity{
		ID:         rl.ID,
		Identifier: rl.Identifier,
		Selection:  Selection{Mode: mode, Preference: preference},
		AssetCount: rl.AssetCount,
		Outcome:    rl.Outcome,
		Resolved:   rl.Resolved,
	}, nil
}
