package app

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"marketing_sync/internal/domain"
)

var leadTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateLayout,
}

type leadKey struct {
	date      string
	accountID int64
	account   string
}

// AggregateLeads counts phone-call and web-form leads per (date, account).
// Leads without a parseable creation date or account id are dropped.
func AggregateLeads(leads []domain.Lead) []domain.LeadDailyRow {
	groups := map[leadKey]*domain.LeadDailyRow{}
	for _, l := range leads {
		created, ok := parseLeadTime(lookupStr(l, "date_created"))
		if !ok {
			log.Warn().Interface("lead_id", l["lead_id"]).Msg("lead without usable date_created skipped")
			continue
		}
		accountID, ok := toInt64(l["account_id"])
		if !ok {
			log.Warn().Interface("lead_id", l["lead_id"]).Msg("lead without account_id skipped")
			continue
		}
		k := leadKey{date: created.Format(dateLayout), accountID: accountID, account: lookupStr(l, "account")}
		row, ok := groups[k]
		if !ok {
			row = &domain.LeadDailyRow{Date: k.date, AccountID: k.accountID, Account: k.account}
			groups[k] = row
		}
		switch strings.ToLower(lookupStr(l, "lead_type")) {
		case "phone call":
			row.PhoneCall++
		case "web form":
			row.WebForm++
		}
	}

	out := make([]domain.LeadDailyRow, 0, len(groups))
	for _, r := range groups {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		return a.Account < b.Account
	})
	return out
}

func parseLeadTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range leadTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
