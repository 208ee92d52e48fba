package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DutyStatus is one of the four regulatory duty statuses a driver can be in.
// The zero value is not a valid status.
type DutyStatus uint8

const (
	DutyStatusDriving DutyStatus = iota + 1
	DutyStatusOnDuty
	DutyStatusOffDuty
	DutyStatusSleeping
)

// AllDutyStatuses lists every status in display order
var AllDutyStatuses = []DutyStatus{
	DutyStatusDriving,
	DutyStatusOnDuty,
	DutyStatusOffDuty,
	DutyStatusSleeping,
}

var dutyStatusNames = map[DutyStatus]string{
	DutyStatusDriving:  "driving",
	DutyStatusOnDuty:   "on_duty",
	DutyStatusOffDuty:  "off_duty",
	DutyStatusSleeping: "sleeping",
}

// ParseDutyStatus converts the wire/storage form ("driving", "on_duty",
// "off_duty", "sleeping") into a DutyStatus
func ParseDutyStatus(s string) (DutyStatus, error) {
	for status, name := range dutyStatusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown duty status %q", s)
}

func (s DutyStatus) String() string {
	if name, ok := dutyStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DutyStatus(%d)", uint8(s))
}

// Valid reports whether s is one of the four defined statuses
func (s DutyStatus) Valid() bool {
	_, ok := dutyStatusNames[s]
	return ok
}

// CountsAsDuty reports whether time in this status counts towards the
// on-duty limits (driving and on-duty not driving)
func (s DutyStatus) CountsAsDuty() bool {
	return s == DutyStatusDriving || s == DutyStatusOnDuty
}

func (s DutyStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid duty status %d", uint8(s))
	}
	return json.Marshal(s.String())
}

func (s *DutyStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDutyStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText lets DutyStatus be used as a JSON object key
func (s DutyStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid duty status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *DutyStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseDutyStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Scan implements sql.Scanner so sqlx can read the TEXT status column
func (s *DutyStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into DutyStatus", src)
	}
	parsed, err := ParseDutyStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer
func (s DutyStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid duty status %d", uint8(s))
	}
	return s.String(), nil
}
