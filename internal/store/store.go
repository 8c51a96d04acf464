// Package store persists callers, bookings, calls and the audit trail in
// MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/booking"
	"github.com/troikatech/cab-voice-agent/pkg/mongo"
)

const (
	callersCollection  = "callers"
	bookingsCollection = "bookings"
	callsCollection    = "calls"
	auditCollection    = "audit_log"

	// historyLimit bounds the address history kept per caller.
	historyLimit = 20
)

var ErrNotFound = errors.New("not found")

// Store is the MongoDB implementation of every persistence boundary the
// session uses.
type Store struct {
	db  *mongo.Client
	log *zap.Logger
}

func New(db *mongo.Client, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// EnsureIndexes creates the lookup indexes. Safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string]map[string]bool{
		callersCollection:  {"phone": true},
		bookingsCollection: {"reference": true, "phone": false, "created_at": false},
		callsCollection:    {"call_id": true},
	}
	for collection, fields := range indexes {
		if err := s.db.EnsureIndexes(ctx, collection, fields); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", collection, err)
		}
	}
	return nil
}

// Caller is the stored caller profile.
type Caller struct {
	Phone         string            `bson:"phone" json:"phone"`
	Name          string            `bson:"name,omitempty" json:"name,omitempty"`
	History       []string          `bson:"history,omitempty" json:"history,omitempty"`
	Aliases       map[string]string `bson:"aliases,omitempty" json:"aliases,omitempty"`
	LastBookingID string            `bson:"last_booking_id,omitempty" json:"last_booking_id,omitempty"`
	UpdatedAt     time.Time         `bson:"updated_at" json:"updated_at"`
}

// Profile looks a caller up by E.164 phone.
func (s *Store) Profile(ctx context.Context, phone string) (*booking.Profile, error) {
	var c Caller
	err := s.db.NewQuery(callersCollection).Eq("phone", phone).FindOne(ctx, &c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load caller: %w", err)
	}
	return &booking.Profile{
		Name:    c.Name,
		Phone:   c.Phone,
		History: c.History,
		Aliases: c.Aliases,
	}, nil
}

func (s *Store) SaveName(ctx context.Context, phone, name string) error {
	return s.db.NewQuery(callersCollection).Eq("phone", phone).Upsert(ctx, bson.M{
		"$set": bson.M{"name": name, "updated_at": time.Now()},
	})
}

// SaveAlias stores alias -> address, keyed by the lowercased alias.
func (s *Store) SaveAlias(ctx context.Context, phone, alias, addr string) error {
	key := strings.ToLower(strings.TrimSpace(alias))
	if key == "" || strings.ContainsAny(key, ".$") {
		return fmt.Errorf("invalid alias %q", alias)
	}
	return s.db.NewQuery(callersCollection).Eq("phone", phone).Upsert(ctx, bson.M{
		"$set": bson.M{"aliases." + key: addr, "updated_at": time.Now()},
	})
}

// RememberAddresses appends addresses to the caller's history, newest
// last, keeping the most recent entries.
func (s *Store) RememberAddresses(ctx context.Context, phone, bookingID string, addrs ...string) error {
	kept := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if strings.TrimSpace(a) != "" {
			kept = append(kept, a)
		}
	}
	set := bson.M{"updated_at": time.Now()}
	if bookingID != "" {
		set["last_booking_id"] = bookingID
	}
	update := bson.M{"$set": set}
	if len(kept) > 0 {
		update["$push"] = bson.M{"history": bson.M{"$each": kept, "$slice": -historyLimit}}
	}
	return s.db.NewQuery(callersCollection).Eq("phone", phone).Upsert(ctx, update)
}
