package db

import "time"

type ResolutionLog struct {
	ID         string    `db:"id"`
	Identifier string    `db:"identifier"`
	Preference string    `db:"preference"`
	Mode       string    `db:"mode"`
	AssetCount int       `db:"asset_count"`
	Outcome    string    `db:"outcome"`
	Resolved   time.Time `db:"resolved"`
}
