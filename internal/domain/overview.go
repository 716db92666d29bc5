package domain

import "time"

// OverviewTotals are the school-wide counts for one date.
type OverviewTotals struct {
	SentToday           int `json:"sentToday"`
	FailedToday         int `json:"failedToday"`
	PendingBeforeCutoff int `json:"pendingBeforeCutoff"`
	PendingAfterCutoff  int `json:"pendingAfterCutoff"`
}

// ClassOverview is the per-class breakdown shown on the monitoring console.
type ClassOverview struct {
	ClassID             int64  `json:"classId"`
	ClassName           string `json:"className"`
	SendAfter           string `json:"sendAfter"`
	Due                 bool   `json:"due"`
	AbsentToday         int    `json:"absentToday"`
	Sent                int    `json:"sent"`
	Failed              int    `json:"failed"`
	PendingBeforeCutoff int    `json:"pendingBeforeCutoff"`
	PendingAfterCutoff  int    `json:"pendingAfterCutoff"`
}

// Overview is the read-only dispatch rollup for one date. Safe to request
// arbitrarily often; it never mutates anything.
type Overview struct {
	DateKey           string          `json:"dateKey"`
	Timezone          string          `json:"timezone"`
	CurrentTime       time.Time       `json:"currentTime"`
	NextDispatchCheck *time.Time      `json:"nextDispatchCheck,omitempty"`
	Totals            OverviewTotals  `json:"totals"`
	Classes           []ClassOverview `json:"classes"`
}
