package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// LIMIT 2 is enough to tell a unique match from an ambiguous one.
const findMemberQuery = `
SELECT id::text, member_number, full_name, email, phone, status, membership_type,
       auth_user_id::text, address, town, postcode, role, collector_id::text,
       payment_amount, payment_type, payment_date::text, payment_notes
FROM members
WHERE member_number = $1 OR auth_user_id::text = $2
LIMIT 2`

type MemberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

type memberRow struct {
	id, memberNumber, fullName                       string
	email, phone, status, membershipType, authUserID sql.NullString
	address, town, postcode, role, collectorID       sql.NullString
	paymentAmount                                    sql.NullFloat64
	paymentType, paymentDate, paymentNotes           sql.NullString
}

func (r *memberRow) dest() []any {
	return []any{
		&r.id, &r.memberNumber, &r.fullName, &r.email, &r.phone, &r.status, &r.membershipType,
		&r.authUserID, &r.address, &r.town, &r.postcode, &r.role, &r.collectorID,
		&r.paymentAmount, &r.paymentType, &r.paymentDate, &r.paymentNotes,
	}
}

func (r *memberRow) toDomain() *domain.Member {
	m := &domain.Member{
		ID:             r.id,
		MemberNumber:   r.memberNumber,
		FullName:       r.fullName,
		Email:          r.email.String,
		Phone:          r.phone.String,
		Status:         r.status.String,
		MembershipType: r.membershipType.String,
		AuthUserID:     r.authUserID.String,
		Address:        r.address.String,
		Town:           r.town.String,
		Postcode:       r.postcode.String,
		Role:           r.role.String,
		CollectorID:    r.collectorID.String,
		PaymentType:    r.paymentType.String,
		PaymentDate:    r.paymentDate.String,
		PaymentNotes:   r.paymentNotes.String,
	}
	if r.paymentAmount.Valid {
		amount := r.paymentAmount.Float64
		m.PaymentAmount = &amount
	}
	return m
}

// FindByMemberNumberOrAuthUser returns at most two matching members.
func (r *MemberRepository) FindByMemberNumberOrAuthUser(ctx context.Context, memberNumber, authUserID string) ([]*domain.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, findMemberQuery, memberNumber, authUserID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		var row memberRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// Ping reports whether the members database is reachable.
func (r *MemberRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
