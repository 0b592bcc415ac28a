package domain

// AnalyticsRow is one GA4 report row for a property.
type AnalyticsRow struct {
	PropertyID      string
	Date            string // YYYYMMDD as reported
	Sessions        int64
	EngagedSessions int64
	EventCount      int64
	KeyEvents       int64
}

func (r AnalyticsRow) Row() Row {
	return Row{
		"property_id":      r.PropertyID,
		"date":             r.Date,
		"sessions":         r.Sessions,
		"engaged_sessions": r.EngagedSessions,
		"event_count":      r.EventCount,
		"key_events":       r.KeyEvents,
	}
}

// DailyMetricSeries is the decoded time series for one metric of one location.
type DailyMetricSeries struct {
	Metric string
	Values []DatedValue
}

type DatedValue struct {
	Year, Month, Day int
	Value            *string // nil when the API omits the value
}

// ProfileMetricRow is one (date, location) row of the performance table.
type ProfileMetricRow struct {
	Date      string
	ProfileID string
	Values    map[string]*int64
}

func (r ProfileMetricRow) Row() Row {
	out := Row{"date": r.Date, "profile_id": r.ProfileID}
	for k, v := range r.Values {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = *v
	}
	return out
}

// Lead is the subset of a WhatConverts lead used for aggregation.
type Lead = map[string]any

type LeadDailyRow struct {
	Date      string
	AccountID int64
	Account   string
	PhoneCall int
	WebForm   int
}

func (r LeadDailyRow) Row() Row {
	return Row{
		"date":       r.Date,
		"account_id": r.AccountID,
		"account":    r.Account,
		"phone_call": r.PhoneCall,
		"web_form":   r.WebForm,
	}
}
