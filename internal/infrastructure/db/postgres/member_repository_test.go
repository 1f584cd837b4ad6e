package postgres

import (
	"database/sql"
	"strings"
	"testing"
)

func TestMemberRow_ToDomainMapsNulls(t *testing.T) {
	row := memberRow{
		id:           "7",
		memberNumber: "M-1001",
		fullName:     "Ada Lovelace",
		town:         sql.NullString{String: "London", Valid: true},
	}

	m := row.toDomain()
	if m.ID != "7" || m.Town != "London" {
		t.Fatalf("unexpected member: %+v", m)
	}
	if m.Email != "" || m.PaymentAmount != nil {
		t.Fatalf("expected NULL columns to map to empty values, got %+v", m)
	}

	row.paymentAmount = sql.NullFloat64{Float64: 40, Valid: true}
	if got := row.toDomain().PaymentAmount; got == nil || *got != 40 {
		t.Fatalf("expected amount 40, got %v", got)
	}
}

func TestMemberRow_DestMatchesSelectList(t *testing.T) {
	selectList := findMemberQuery[strings.Index(findMemberQuery, "SELECT")+len("SELECT") : strings.Index(findMemberQuery, "FROM")]
	columns := strings.Count(selectList, ",") + 1

	var row memberRow
	if got := len(row.dest()); got != columns {
		t.Fatalf("scan targets %d, selected columns %d", got, columns)
	}
}

func TestFindMemberQuery_IsBoundedOrLookup(t *testing.T) {
	for _, want := range []string{"member_number = $1", "auth_user_id::text = $2", "LIMIT 2", " OR "} {
		if !strings.Contains(findMemberQuery, want) {
			t.Fatalf("query missing %q", want)
		}
	}
}
