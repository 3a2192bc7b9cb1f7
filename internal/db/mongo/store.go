// Package mongo is the MongoDB ledger store. Bills are single documents with
// their payment status embedded; transactions need a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/susu3304/warikan/internal/ledger"
)

// Collection name constants.
const (
	colBills         = "warikan_bills"
	colConfirmations = "warikan_confirmations"
	colJournal       = "warikan_allocation_journal"
)

// incrementAttempts bounds the compare-and-swap loop in IncrementParticipantPaid.
const incrementAttempts = 3

var _ ledger.Store = (*Store)(nil)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	inTx   bool
}

// Connect dials uri and returns a store on database name.
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("warikan/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("warikan/mongo: ping: %w", err)
	}
	return New(client, name), nil
}

func New(client *mongo.Client, name string) *Store {
	return &Store{client: client, db: client.Database(name)}
}

// Migrate creates indexes for all ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("warikan/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) bills() *mongo.Collection         { return s.db.Collection(colBills) }
func (s *Store) confirmations() *mongo.Collection { return s.db.Collection(colConfirmations) }
func (s *Store) journal() *mongo.Collection       { return s.db.Collection(colJournal) }

// InTx runs fn in a session transaction. Nested calls join the outer one.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("warikan/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	tx := &Store{client: s.client, db: s.db, inTx: true}
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, tx)
	})
	return err
}

// ==================== Bills ====================

// CreateBill inserts a bill document, filling in derived flags.
func (s *Store) CreateBill(ctx context.Context, b ledger.Bill) error {
	m := toBillModel(b)
	if _, err := s.bills().InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: bill %s exists", ledger.ErrConflict, b.ID)
		}
		return fmt.Errorf("warikan/mongo: create bill: %w", err)
	}
	return nil
}

func (s *Store) GetBill(ctx context.Context, id ledger.BillID) (*ledger.Bill, error) {
	var m billModel
	if err := s.bills().FindOne(ctx, bson.M{"_id": string(id)}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("bill %s: %w", id, ledger.ErrNotFound)
		}
		return nil, fmt.Errorf("warikan/mongo: get bill: %w", err)
	}
	b := fromBillModel(&m)
	return &b, nil
}

func (s *Store) FindBillsByPayer(ctx context.Context, payer ledger.UserID) ([]ledger.Bill, error) {
	return s.findBills(ctx, bson.M{"payer_id": string(payer)})
}

func (s *Store) FindBillsByParticipant(ctx context.Context, user ledger.UserID) ([]ledger.Bill, error) {
	return s.findBills(ctx, bson.M{"participant_ids": string(user)})
}

func (s *Store) findBills(ctx context.Context, filter bson.M) ([]ledger.Bill, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.bills().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("warikan/mongo: find bills: %w", err)
	}
	var models []billModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("warikan/mongo: decode bills: %w", err)
	}
	out := make([]ledger.Bill, len(models))
	for i := range models {
		out[i] = fromBillModel(&models[i])
	}
	return out, nil
}

// IncrementParticipantPaid swaps the entry's amount_paid from the value just
// read to the new one. A concurrent writer makes the swap miss; after a few
// misses the call gives up with ErrConflict.
func (s *Store) IncrementParticipantPaid(ctx context.Context, bill ledger.BillID, user ledger.UserID, amount int64, at time.Time) (ledger.PaymentStatusEntry, error) {
	if amount <= 0 {
		return ledger.PaymentStatusEntry{}, fmt.Errorf("%w: increment must be positive", ledger.ErrBadRequest)
	}

	for attempt := 0; attempt < incrementAttempts; attempt++ {
		current, err := s.GetBill(ctx, bill)
		if err != nil {
			return ledger.PaymentStatusEntry{}, err
		}
		e, ok := current.Entry(user)
		if !ok {
			return ledger.PaymentStatusEntry{}, fmt.Errorf("bill %s has no entry for %s: %w", bill, user, ledger.ErrNotFound)
		}
		if e.AmountPaid+amount > e.AmountOwed {
			return ledger.PaymentStatusEntry{}, fmt.Errorf("bill %s entry %s: %w", bill, user, ledger.ErrConflict)
		}

		set := bson.M{}
		if e.AmountPaid+amount >= e.AmountOwed {
			set["payment_status.$.is_paid"] = true
			set["payment_status.$.paid_date"] = at.UTC()
		}
		update := bson.M{"$inc": bson.M{"payment_status.$.amount_paid": amount}}
		if len(set) > 0 {
			update["$set"] = set
		}
		filter := bson.M{
			"_id": string(bill),
			"payment_status": bson.M{"$elemMatch": bson.M{
				"user_id":     string(user),
				"amount_paid": e.AmountPaid,
			}},
		}

		var updated billModel
		err = s.bills().FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if isNoDocuments(err) {
			continue
		}
		if err != nil {
			return ledger.PaymentStatusEntry{}, fmt.Errorf("warikan/mongo: increment paid: %w", err)
		}

		after := fromBillModel(&updated)
		if settled := after.AllPaid(); settled != after.IsSettled {
			if _, err := s.bills().UpdateOne(ctx,
				bson.M{"_id": string(bill)},
				bson.M{"$set": bson.M{"is_settled": settled}},
			); err != nil {
				return ledger.PaymentStatusEntry{}, fmt.Errorf("warikan/mongo: refresh settled: %w", err)
			}
		}
		ne, _ := after.Entry(user)
		return *ne, nil
	}
	return ledger.PaymentStatusEntry{}, fmt.Errorf("bill %s entry %s: %w", bill, user, ledger.ErrConflict)
}

// ==================== Confirmations ====================

func (s *Store) InsertConfirmation(ctx context.Context, rec ledger.ConfirmationRecord) error {
	if _, err := s.confirmations().InsertOne(ctx, toConfirmationModel(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrAlreadyUsed
		}
		return fmt.Errorf("warikan/mongo: insert confirmation: %w", err)
	}
	return nil
}

func (s *Store) FindConfirmation(ctx context.Context, token string) (*ledger.ConfirmationRecord, error) {
	var m confirmationModel
	if err := s.confirmations().FindOne(ctx, bson.M{"_id": token}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("warikan/mongo: find confirmation: %w", err)
	}
	rec := fromConfirmationModel(&m)
	return &rec, nil
}

// ==================== Allocation journal ====================

func (s *Store) RecordAllocation(ctx context.Context, payment ledger.PaymentID, a ledger.Allocation, at time.Time) error {
	m := journalModel{
		PaymentID: string(payment),
		BillID:    string(a.BillID),
		BillName:  a.BillName,
		DebtorID:  string(a.DebtorID),
		Amount:    a.AmountPaid,
		AppliedAt: at.UTC(),
	}
	if _, err := s.journal().InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("payment %s on bill %s: %w", payment, a.BillID, ledger.ErrAlreadyUsed)
		}
		return fmt.Errorf("warikan/mongo: record allocation: %w", err)
	}
	return nil
}

func (s *Store) AllocationsForPayment(ctx context.Context, payment ledger.PaymentID) ([]ledger.Allocation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "applied_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.journal().Find(ctx, bson.M{"payment_id": string(payment)}, opts)
	if err != nil {
		return nil, fmt.Errorf("warikan/mongo: find allocations: %w", err)
	}
	var models []journalModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("warikan/mongo: decode allocations: %w", err)
	}
	out := make([]ledger.Allocation, 0, len(models))
	for _, m := range models {
		out = append(out, ledger.Allocation{
			BillID:     ledger.BillID(m.BillID),
			BillName:   m.BillName,
			DebtorID:   ledger.UserID(m.DebtorID),
			AmountPaid: m.Amount,
		})
	}
	return out, nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colBills: {
			{Keys: bson.D{{Key: "payer_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "participant_ids", Value: 1}}},
		},
		colConfirmations: {
			{Keys: bson.D{{Key: "payment_id", Value: 1}}},
		},
		colJournal: {
			{
				Keys:    bson.D{{Key: "payment_id", Value: 1}, {Key: "bill_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
