package db

import "time"

type RelayMode string

const (
	RelayModeSingle  RelayMode = "SINGLE"
	RelayModeArchive RelayMode = "ARCHIVE"
)

type RelayLog struct {
	ID             string    `db:"id"`
	Filename       string    `db:"filename"`
	Mode           RelayMode `db:"mode"`
	EntriesWritten int       `db:"entries_written"`
	EntriesOmitted int       `db:"entries_omitted"`
	Bytes          int64     `db:"bytes"`
	Outcome        string    `db:"outcome"`
	Relayed        time.Time `db:"relayed"`
}
