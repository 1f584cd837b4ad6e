package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/memberhub/memberdash/internal/core/domain"
)

const (
	collectionMembers = "members"
	// Two rows are enough to tell a unique match from an ambiguous one.
	memberLookupLimit = 2
)

type memberDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	MemberNumber   string             `bson:"member_number"`
	FullName       string             `bson:"full_name"`
	Email          string             `bson:"email,omitempty"`
	Phone          string             `bson:"phone,omitempty"`
	Status         string             `bson:"status,omitempty"`
	MembershipType string             `bson:"membership_type,omitempty"`
	AuthUserID     string             `bson:"auth_user_id,omitempty"`
	Address        string             `bson:"address,omitempty"`
	Town           string             `bson:"town,omitempty"`
	Postcode       string             `bson:"postcode,omitempty"`
	Role           string             `bson:"role,omitempty"`
	CollectorID    string             `bson:"collector_id,omitempty"`
	PaymentAmount  *float64           `bson:"payment_amount,omitempty"`
	PaymentType    string             `bson:"payment_type,omitempty"`
	PaymentDate    string             `bson:"payment_date,omitempty"`
	PaymentNotes   string             `bson:"payment_notes,omitempty"`
}

func (d *memberDocument) toDomain() *domain.Member {
	m := &domain.Member{
		MemberNumber:   d.MemberNumber,
		FullName:       d.FullName,
		Email:          d.Email,
		Phone:          d.Phone,
		Status:         d.Status,
		MembershipType: d.MembershipType,
		AuthUserID:     d.AuthUserID,
		Address:        d.Address,
		Town:           d.Town,
		Postcode:       d.Postcode,
		Role:           d.Role,
		CollectorID:    d.CollectorID,
		PaymentAmount:  d.PaymentAmount,
		PaymentType:    d.PaymentType,
		PaymentDate:    d.PaymentDate,
		PaymentNotes:   d.PaymentNotes,
	}
	if !d.ID.IsZero() {
		m.ID = d.ID.Hex()
	}
	return m
}

type MemberRepository struct {
	col *mongo.Collection
}

func NewMemberRepository(db *mongo.Database) *MemberRepository {
	return &MemberRepository{col: db.Collection(collectionMembers)}
}

// memberFilter matches a row by member number or by the linked identity.
func memberFilter(memberNumber, authUserID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"member_number": memberNumber},
		bson.M{"auth_user_id": authUserID},
	}}
}

// FindByMemberNumberOrAuthUser returns at most two matching members.
func (r *MemberRepository) FindByMemberNumberOrAuthUser(ctx context.Context, memberNumber, authUserID string) ([]*domain.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, memberFilter(memberNumber, authUserID), options.Find().SetLimit(memberLookupLimit))
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}
	defer cur.Close(ctx)

	var docs []memberDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}

	members := make([]*domain.Member, 0, len(docs))
	for i := range docs {
		members = append(members, docs[i].toDomain())
	}
	return members, nil
}

// Ping reports whether the members database is reachable.
func (r *MemberRepository) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}

// EnsureIndexes creates the lookup indexes on the members collection.
func (r *MemberRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "member_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "auth_user_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := r.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("ensure member indexes: %w", err)
	}
	return nil
}
