package apiclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ID is an identifier the backend sends either as a JSON number or a string.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier, or "-" when it is empty.
func (id ID) String() string {
	if id == "" {
		return "-"
	}
	return string(id)
}

// LoginResult is returned by [Client.Login].
type LoginResult struct {
	AccessToken string `json:"accessToken"`
}

// Feedback is one user feedback entry.
type Feedback struct {
	UserID    ID     `json:"userId"`
	Contents  string `json:"contents"`
	CreatedAt string `json:"createdAt"`
}

// FeedbackPage is one page of feedback entries.
type FeedbackPage struct {
	Feedbacks     []Feedback `json:"feedbacks"`
	TotalPages    int        `json:"totalPages"`
	TotalElements int        `json:"totalElements"`
	HasNext       bool       `json:"hasNext"`
}

// Report is one comment report filed by a user.
type Report struct {
	ID          ID     `json:"id"`
	ReporterID  ID     `json:"reporterId"`
	TargetID    ID     `json:"targetId"`
	Content     string `json:"content"`
	Reason      string `json:"reason"`
	CreatedAt   string `json:"createdAt"`
	CreatedTime string `json:"createdTime"`
}

// Text returns the report content, falling back to the reason.
func (r Report) Text() string {
	switch {
	case r.Content != "":
		return r.Content
	case r.Reason != "":
		return r.Reason
	}
	return "-"
}

// When returns the creation timestamp under whichever key the backend used.
func (r Report) When() string {
	switch {
	case r.CreatedAt != "":
		return r.CreatedAt
	case r.CreatedTime != "":
		return r.CreatedTime
	}
	return "-"
}

// ReportPage is one page of reports.
type ReportPage struct {
	Reports       []Report `json:"reports"`
	TotalPages    int      `json:"totalPages"`
	TotalElements int      `json:"totalElements"`
}

// Category is a notice category. KorName is the display name when present.
type Category struct {
	Name    string `json:"name"`
	KorName string `json:"korName"`
}

// Label returns the display name of the category.
func (c Category) Label() string {
	if c.KorName != "" {
		return c.KorName
	}
	return c.Name
}

// Alert statuses reported by the backend.
const (
	AlertPending   = "PENDING"
	AlertCompleted = "COMPLETED"
	AlertCanceled  = "CANCELED"
)

// Alert is a scheduled push alert.
type Alert struct {
	ID       ID     `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	WakeTime string `json:"wakeTime"`
	Status   string `json:"status"`
}

// DisplayTime returns WakeTime with the ISO separators removed.
func (a Alert) DisplayTime() string {
	if a.WakeTime == "" {
		return "-"
	}
	return strings.Replace(strings.Replace(a.WakeTime, "T", " ", 1), "Z", "", 1)
}

// AlertPage is one page of scheduled alerts.
type AlertPage struct {
	Alerts        []Alert `json:"alerts"`
	TotalPages    int     `json:"totalPages"`
	TotalElements int     `json:"totalElements"`
}

// CountByStatus returns how many alerts on the page have the given status.
func (p AlertPage) CountByStatus(status string) int {
	n := 0
	for _, a := range p.Alerts {
		if a.Status == status {
			n++
		}
	}
	return n
}
