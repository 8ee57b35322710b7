package settings

import (
	"encoding/json"
	"time"
)

// LoadReport records what the migration engine did while an instance was
// loaded.
type LoadReport struct {
	Identity string         `json:"identity"`
	From     int            `json:"from,omitempty"`
	To       int            `json:"to,omitempty"`
	State    MigrationState `json:"state"`
	Service  string         `json:"service,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// Migrated reports whether a migration ran successfully.
func (r LoadReport) Migrated() bool {
	return r.State == MigrationApplied
}

// ToJSON serialises the report for logging or transport helpers.
func (r LoadReport) ToJSON() ([]byte, error) {
	type alias LoadReport
	return json.Marshal(alias(r))
}

// LoadReportFromJSON deserialises a payload previously produced by ToJSON.
func LoadReportFromJSON(payload []byte) (LoadReport, error) {
	type alias LoadReport
	var report alias
	if err := json.Unmarshal(payload, &report); err != nil {
		return LoadReport{}, err
	}
	return LoadReport(report), nil
}
