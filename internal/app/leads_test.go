package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing_sync/internal/domain"
)

func TestAggregateLeads(t *testing.T) {
	leads := []domain.Lead{
		{"lead_id": 1, "date_created": "2026-09-01T10:00:00Z", "account_id": 9.0, "account": "Acme", "lead_type": "Phone Call"},
		{"lead_id": 2, "date_created": "2026-09-01 18:30:00", "account_id": 9.0, "account": "Acme", "lead_type": "Web Form"},
		{"lead_id": 3, "date_created": "2026-09-01", "account_id": "9", "account": "Acme", "lead_type": "phone call"},
		{"lead_id": 4, "date_created": "2026-08-31T23:00:00Z", "account_id": 3.0, "account": "Zed", "lead_type": "Chat"},
		{"lead_id": 5, "date_created": "garbage", "account_id": 3.0, "account": "Zed", "lead_type": "Web Form"},
		{"lead_id": 6, "date_created": "2026-09-01", "account": "NoID", "lead_type": "Web Form"},
	}
	rows := AggregateLeads(leads)
	require.Len(t, rows, 2)

	assert.Equal(t, domain.LeadDailyRow{Date: "2026-08-31", AccountID: 3, Account: "Zed"}, rows[0])
	assert.Equal(t, domain.LeadDailyRow{Date: "2026-09-01", AccountID: 9, Account: "Acme", PhoneCall: 2, WebForm: 1}, rows[1])
}

func TestAggregateLeads_Empty(t *testing.T) {
	assert.Empty(t, AggregateLeads(nil))
}
