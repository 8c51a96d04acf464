package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Call is the record of one session.
type Call struct {
	CallID    string    `bson:"call_id" json:"call_id"`
	Channel   string    `bson:"channel" json:"channel"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	StartedAt time.Time `bson:"started_at" json:"started_at"`
	EndedAt   time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	EndReason string    `bson:"end_reason,omitempty" json:"end_reason,omitempty"`
	Turns     int       `bson:"turns" json:"turns"`
	BookingID string    `bson:"booking_id,omitempty" json:"booking_id,omitempty"`
}

// StartCall creates or refreshes the call record.
func (s *Store) StartCall(ctx context.Context, c Call) error {
	return s.db.NewQuery(callsCollection).Eq("call_id", c.CallID).Upsert(ctx, bson.M{
		"$set": bson.M{
			"channel":    c.Channel,
			"phone":      c.Phone,
			"started_at": c.StartedAt,
		},
		"$setOnInsert": bson.M{"turns": 0},
	})
}

// EndCall stamps the terminal state of a call.
func (s *Store) EndCall(ctx context.Context, c Call) error {
	set := bson.M{
		"ended_at":   c.EndedAt,
		"end_reason": c.EndReason,
		"turns":      c.Turns,
	}
	if c.BookingID != "" {
		set["booking_id"] = c.BookingID
	}
	return s.db.NewQuery(callsCollection).Eq("call_id", c.CallID).Upsert(ctx, bson.M{"$set": set})
}

// Audit actions for booking side effects.
const (
	ActionBook   = "book"
	ActionModify = "modify"
	ActionCancel = "cancel"
	ActionName   = "save_name"
	ActionAlias  = "save_alias"
)

// Audit records a side effect a session performed. Failures are logged and
// returned; callers never fail a tool call because auditing failed.
func (s *Store) Audit(ctx context.Context, callID, action, resourceType, resourceID string, metadata map[string]interface{}) error {
	metadataJSON, _ := json.Marshal(metadata)
	entry := map[string]interface{}{
		"call_id":       callID,
		"action":        action,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"metadata":      string(metadataJSON),
		"created_at":    time.Now(),
	}
	if err := s.db.NewQuery(auditCollection).Insert(ctx, entry); err != nil {
		s.log.Error("Failed to log audit event",
			zap.Error(err),
			zap.String("action", action),
			zap.String("resource_type", resourceType),
		)
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}
