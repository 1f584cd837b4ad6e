package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/memberhub/memberdash/internal/core/domain"
)

const (
	amountNotRecorded  = "Not recorded"
	typeNotSpecified   = "Not specified"
	noPaymentDate      = "No payment date recorded"
	invalidPaymentDate = "Invalid date"
	notAvailable       = "Not available"
)

// paymentDateLayouts are tried in order when parsing a recorded payment date.
var paymentDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type identitySection struct {
	FullName     string `json:"full_name"`
	MemberNumber string `json:"member_number"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Town         string `json:"town"`
	Postcode     string `json:"postcode"`
}

type membershipSection struct {
	Status         string `json:"status"`
	MembershipType string `json:"membership_type"`
	Role           string `json:"role,omitempty"`
	CollectorID    string `json:"collector_id,omitempty"`
}

type financialSection struct {
	Amount      string `json:"amount"`
	PaymentType string `json:"payment_type"`
	LastPayment string `json:"last_payment"`
	Notes       string `json:"notes,omitempty"`
}

type profileView struct {
	ID         string            `json:"id"`
	Identity   identitySection   `json:"identity"`
	Membership membershipSection `json:"membership"`
	Financial  financialSection  `json:"financial"`
}

func toProfileView(m *domain.Member, now time.Time) *profileView {
	return &profileView{
		ID: m.ID,
		Identity: identitySection{
			FullName:     m.FullName,
			MemberNumber: m.MemberNumber,
			Email:        orDefault(m.Email, notAvailable),
			Phone:        orDefault(m.Phone, notAvailable),
			Address:      orDefault(m.Address, notAvailable),
			Town:         orDefault(m.Town, notAvailable),
			Postcode:     orDefault(m.Postcode, notAvailable),
		},
		Membership: membershipSection{
			Status:         orDefault(m.Status, notAvailable),
			MembershipType: orDefault(m.MembershipType, notAvailable),
			Role:           m.Role,
			CollectorID:    m.CollectorID,
		},
		Financial: financialSection{
			Amount:      formatAmount(m.PaymentAmount),
			PaymentType: orDefault(m.PaymentType, typeNotSpecified),
			LastPayment: formatLastPayment(m.PaymentDate, now),
			Notes:       strings.TrimSpace(m.PaymentNotes),
		},
	}
}

// formatAmount treats a zero amount like a missing one.
func formatAmount(amount *float64) string {
	if amount == nil || *amount == 0 {
		return amountNotRecorded
	}
	return fmt.Sprintf("£%.2f", *amount)
}

func formatLastPayment(date string, now time.Time) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return noPaymentDate
	}
	for _, layout := range paymentDateLayouts {
		if t, err := time.Parse(layout, date); err == nil {
			// Dates ahead of now still read as elapsed time.
			return humanize.RelTime(t, now, "ago", "ago")
		}
	}
	return invalidPaymentDate
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
