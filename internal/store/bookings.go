package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/troikatech/cab-voice-agent/pkg/mongo"
)

const (
	BookingConfirmed = "confirmed"
	BookingModified  = "modified"
	BookingCancelled = "cancelled"
)

// Booking is a dispatched trip.
type Booking struct {
	ID          string    `bson:"_id" json:"id"`
	Reference   string    `bson:"reference" json:"reference"`
	CallID      string    `bson:"call_id" json:"call_id"`
	Phone       string    `bson:"phone" json:"phone"`
	CallerName  string    `bson:"caller_name,omitempty" json:"caller_name,omitempty"`
	Pickup      string    `bson:"pickup" json:"pickup"`
	Destination string    `bson:"destination" json:"destination"`
	Passengers  int       `bson:"passengers" json:"passengers"`
	PickupTime  string    `bson:"pickup_time" json:"pickup_time"`
	VehicleType string    `bson:"vehicle_type,omitempty" json:"vehicle_type,omitempty"`
	Luggage     string    `bson:"luggage,omitempty" json:"luggage,omitempty"`
	Fare        float64   `bson:"fare,omitempty" json:"fare,omitempty"`
	Miles       float64   `bson:"distance_miles,omitempty" json:"distance_miles,omitempty"`
	Status      string    `bson:"status" json:"status"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// newReference returns a short spoken-friendly reference like "TX-3F9A2C".
func newReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TX-" + strings.ToUpper(id[:6])
}

// CreateBooking assigns an id and reference and inserts b.
func (s *Store) CreateBooking(ctx context.Context, b *Booking) error {
	now := time.Now()
	b.ID = uuid.NewString()
	b.Reference = newReference()
	b.Status = BookingConfirmed
	b.CreatedAt = now
	b.UpdatedAt = now
	if err := s.db.NewQuery(bookingsCollection).Insert(ctx, b); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// UpdateBooking rewrites the trip fields of an existing booking.
func (s *Store) UpdateBooking(ctx context.Context, b *Booking) error {
	b.Status = BookingModified
	b.UpdatedAt = time.Now()
	matched, err := s.db.NewQuery(bookingsCollection).Eq("_id", b.ID).UpdateOne(ctx, map[string]interface{}{
		"pickup":         b.Pickup,
		"destination":    b.Destination,
		"passengers":     b.Passengers,
		"pickup_time":    b.PickupTime,
		"vehicle_type":   b.VehicleType,
		"luggage":        b.Luggage,
		"fare":           b.Fare,
		"distance_miles": b.Miles,
		"status":         b.Status,
		"updated_at":     b.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if !matched {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CancelBooking(ctx context.Context, id string) error {
	matched, err := s.db.NewQuery(bookingsCollection).Eq("_id", id).UpdateOne(ctx, map[string]interface{}{
		"status":     BookingCancelled,
		"updated_at": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if !matched {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*Booking, error) {
	var b Booking
	err := s.db.NewQuery(bookingsCollection).Eq("_id", id).FindOne(ctx, &b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return &b, nil
}

// BookingFilter narrows ListBookings. Zero fields match everything.
type BookingFilter struct {
	Phone    string
	Statuses []string
	Since    time.Time
}

// ListBookings pages bookings newest first.
func (s *Store) ListBookings(ctx context.Context, f BookingFilter, limit, skip int64) ([]Booking, int64, error) {
	q := s.db.NewQuery(bookingsCollection)
	if f.Phone != "" {
		q = q.Eq("phone", f.Phone)
	}
	if len(f.Statuses) > 0 {
		q = q.In("status", f.Statuses)
	}
	if !f.Since.IsZero() {
		q = q.Gte("created_at", f.Since)
	}
	total, err := q.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	bookings := []Booking{}
	if err := q.Sort("created_at", false).Limit(limit).Skip(skip).Find(ctx, &bookings); err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}
