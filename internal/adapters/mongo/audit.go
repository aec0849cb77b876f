package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/tour-booking-dashboard/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ActionViewOpened  = "view.opened"
	ActionViewClosed  = "view.closed"
	ActionChartYear   = "chart.year"
	ActionLiveRefresh = "live.refresh"
)

// AuditLogger records the lifecycle of dashboard views.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("view_audit"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	ViewID    string    `bson:"view_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data,omitempty"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, viewID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		ViewID:    viewID.String(),
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithField("action", action).Error("failed to insert audit log: ", err)
		return err
	}
	return nil
}

func (a *AuditLogger) ViewOpened(ctx context.Context, viewID uuid.UUID, chartYear int) error {
	return a.LogEvent(ctx, ActionViewOpened, viewID, map[string]interface{}{"chart_year": chartYear})
}

func (a *AuditLogger) ViewClosed(ctx context.Context, viewID uuid.UUID, reason string) error {
	return a.LogEvent(ctx, ActionViewClosed, viewID, map[string]interface{}{"reason": reason})
}

func (a *AuditLogger) ChartYearChanged(ctx context.Context, viewID uuid.UUID, year int) error {
	return a.LogEvent(ctx, ActionChartYear, viewID, map[string]interface{}{"year": year})
}

func (a *AuditLogger) LiveRefresh(ctx context.Context, viewID uuid.UUID, pending int) error {
	return a.LogEvent(ctx, ActionLiveRefresh, viewID, map[string]interface{}{"pending": pending})
}

// History returns a view's events, oldest first.
func (a *AuditLogger) History(ctx context.Context, viewID uuid.UUID) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"view_id": viewID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []AuditLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
