package domain

// Member is the membership record resolved for an authenticated identity.
// Optional text columns are empty strings when not recorded; PaymentAmount is
// nil when no amount was recorded.
type Member struct {
	ID             string   `json:"id"`
	MemberNumber   string   `json:"member_number"`
	FullName       string   `json:"full_name"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Status         string   `json:"status,omitempty"`
	MembershipType string   `json:"membership_type,omitempty"`
	AuthUserID     string   `json:"auth_user_id,omitempty"`
	Address        string   `json:"address,omitempty"`
	Town           string   `json:"town,omitempty"`
	Postcode       string   `json:"postcode,omitempty"`
	Role           string   `json:"role,omitempty"`
	CollectorID    string   `json:"collector_id,omitempty"`
	PaymentAmount  *float64 `json:"payment_amount,omitempty"`
	PaymentType    string   `json:"payment_type,omitempty"`
	PaymentDate    string   `json:"payment_date,omitempty"`
	PaymentNotes   string   `json:"payment_notes,omitempty"`
}
