// Package mongo stores the users collection: profile, role and the mirrored
// cart and wishlist of every identity.
package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/roseila-storefront/internal/domain/user"
)

// UsersCollection is the collection name.
const UsersCollection = "users"

var (
	_ user.Repository      = (*UserRepository)(nil)
	_ user.StateRepository = (*UserRepository)(nil)
)

type userDoc struct {
	UID         string        `bson:"_id"`
	DisplayName string        `bson:"display_name"`
	Email       string        `bson:"email"`
	Role        string        `bson:"role"`
	CreatedAt   time.Time     `bson:"created_at"`
	Cart        []cartLineDoc `bson:"cart,omitempty"`
	Wishlist    []string      `bson:"wishlist,omitempty"`
	UpdatedAt   time.Time     `bson:"updated_at,omitempty"`
}

type cartLineDoc struct {
	ProductID string               `bson:"product_id"`
	Name      string               `bson:"name"`
	Price     primitive.Decimal128 `bson:"price"`
	Quantity  int                  `bson:"quantity"`
}

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return client, nil
}

// UserRepository implements user.Repository and user.StateRepository.
type UserRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewUserRepository returns a UserRepository over db.users.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(UsersCollection), now: time.Now}
}

// EnsureIndexes creates the secondary indexes used by admin listings.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return errors.Wrap(err, "creating user indexes")
	}
	return nil
}

// EnsureProfile inserts the profile when no record exists for p.UID. Fields
// of an existing record are never overwritten, so a promoted admin stays
// admin on the next sign-in.
func (r *UserRepository) EnsureProfile(ctx context.Context, p user.Profile) (*user.Profile, bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": p.UID},
		bson.M{"$setOnInsert": bson.M{
			"display_name": p.DisplayName,
			"email":        p.Email,
			"role":         string(p.Role),
			"created_at":   p.CreatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, false, errors.Wrapf(err, "ensuring profile %q", p.UID)
	}

	stored, err := r.GetProfile(ctx, p.UID)
	if err != nil {
		return nil, false, err
	}
	return stored, res.UpsertedCount == 1, nil
}

// GetProfile returns the profile of uid.
func (r *UserRepository) GetProfile(ctx context.Context, uid string) (*user.Profile, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": uid},
		options.FindOne().SetProjection(bson.M{"cart": 0, "wishlist": 0}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting profile %q", uid)
	}
	p := toProfile(doc)
	return &p, nil
}

// ListProfiles returns every profile, newest first.
func (r *UserRepository) ListProfiles(ctx context.Context) ([]user.Profile, error) {
	cur, err := r.coll.Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetProjection(bson.M{"cart": 0, "wishlist": 0}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing profiles")
	}

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding profiles")
	}
	profiles := make([]user.Profile, len(docs))
	for i, d := range docs {
		profiles[i] = toProfile(d)
	}
	return profiles, nil
}

// CountProfiles counts every profile.
func (r *UserRepository) CountProfiles(ctx context.Context) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Wrap(err, "counting profiles")
	}
	return n, nil
}

// SetRole changes the role of an existing profile.
func (r *UserRepository) SetRole(ctx context.Context, uid string, role user.Role) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": uid},
		bson.M{"$set": bson.M{"role": string(role), "updated_at": r.now().UTC()}},
	)
	if err != nil {
		return errors.Wrapf(err, "setting role of %q", uid)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

// LoadState returns the mirrored cart and wishlist of uid.
func (r *UserRepository) LoadState(ctx context.Context, uid string) (*user.SavedState, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": uid},
		options.FindOne().SetProjection(bson.M{"cart": 1, "wishlist": 1}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "loading state of %q", uid)
	}

	state := &user.SavedState{Wishlist: doc.Wishlist}
	for _, l := range doc.Cart {
		price, err := decimal.NewFromString(l.Price.String())
		if err != nil {
			return nil, errors.Wrapf(err, "decoding cart price of %q", uid)
		}
		state.Cart = append(state.Cart, user.SavedLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: price,
			Quantity:  l.Quantity,
		})
	}
	return state, nil
}

// SaveCart replaces the mirrored cart of uid.
func (r *UserRepository) SaveCart(ctx context.Context, uid string, lines []user.SavedLine) error {
	docs := make([]cartLineDoc, len(lines))
	for i, l := range lines {
		price, err := primitive.ParseDecimal128(l.UnitPrice.String())
		if err != nil {
			return errors.Wrap(err, "encoding cart price")
		}
		docs[i] = cartLineDoc{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     price,
			Quantity:  l.Quantity,
		}
	}
	return r.set(ctx, uid, "cart", docs)
}

// SaveWishlist replaces the mirrored wishlist of uid.
func (r *UserRepository) SaveWishlist(ctx context.Context, uid string, productIDs []string) error {
	if productIDs == nil {
		productIDs = []string{}
	}
	return r.set(ctx, uid, "wishlist", productIDs)
}

// set writes one field of an existing record. Mirror writes never create a
// record, so a profile is always inserted through EnsureProfile.
func (r *UserRepository) set(ctx context.Context, uid, field string, value any) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": uid},
		bson.M{"$set": bson.M{field: value, "updated_at": r.now().UTC()}},
	)
	if err != nil {
		return errors.Wrapf(err, "saving %s of %q", field, uid)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func toProfile(d userDoc) user.Profile {
	return user.Profile{
		UID:         d.UID,
		DisplayName: d.DisplayName,
		Email:       d.Email,
		Role:        user.Role(d.Role),
		CreatedAt:   d.CreatedAt,
	}
}
