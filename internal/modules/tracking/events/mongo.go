package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pulsetrack/pulse/internal/models"
)

const mongoCollection = "events"

type eventDoc struct {
	ID        string    `bson:"_id"`
	Token     string    `bson:"token"`
	VisitorID string    `bson:"visitor_id"`
	Type      string    `bson:"type"`
	Path      string    `bson:"path,omitempty"`
	Referrer  string    `bson:"referrer,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoLog keeps events in a MongoDB collection. Aggregations run server
// side; the timeline pipeline needs $dateTrunc (MongoDB 5.0+).
type MongoLog struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// DialMongo connects to uri and prepares the events collection.
func DialMongo(ctx context.Context, uri, database string) (*MongoLog, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	l := &MongoLog{client: client, coll: client.Database(database).Collection(mongoCollection)}
	if err := l.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return l, nil
}

func (l *MongoLog) ensureIndexes(ctx context.Context) error {
	_, err := l.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo create indexes: %w", err)
	}
	return nil
}

// Ping checks the server is reachable.
func (l *MongoLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx, nil)
}

func (l *MongoLog) Close(ctx context.Context) error {
	return l.client.Disconnect(ctx)
}

func (l *MongoLog) Append(ctx context.Context, e Event) error {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := l.coll.InsertOne(ctx, eventDoc{
		ID:        id,
		Token:     e.Token,
		VisitorID: e.VisitorID,
		Type:      e.Type,
		Path:      e.Path,
		Referrer:  e.Referrer,
		CreatedAt: e.CreatedAt.UTC(),
	})
	return err
}

func (l *MongoLog) TopPages(ctx context.Context, token string, since time.Time, limit int) ([]PageCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "token", Value: token},
			{Key: "type", Value: models.EventPageview},
			{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since.UTC()}}},
		}}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: bson.D{
			{Key: "path", Value: "$path"},
			{Key: "visitor", Value: "$visitor_id"},
		}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.path"},
			{Key: "visitor_count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "visitor_count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}

	var rows []struct {
		Path         *string `bson:"_id"`
		VisitorCount int64   `bson:"visitor_count"`
	}
	if err := l.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, err
	}
	out := make([]PageCount, 0, len(rows))
	for _, r := range rows {
		p := PageCount{VisitorCount: r.VisitorCount}
		if r.Path != nil {
			p.Path = *r.Path
		}
		out = append(out, p)
	}
	return out, nil
}

func (l *MongoLog) Timeline(ctx context.Context, token string, since time.Time) ([]TimelinePoint, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "token", Value: token},
			{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since.UTC()}}},
		}}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: bson.D{
			{Key: "minute", Value: bson.D{{Key: "$dateTrunc", Value: bson.D{
				{Key: "date", Value: "$created_at"},
				{Key: "unit", Value: "minute"},
			}}}},
			{Key: "visitor", Value: "$visitor_id"},
		}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.minute"},
			{Key: "visitor_count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	var rows []struct {
		Minute       time.Time `bson:"_id"`
		VisitorCount int64     `bson:"visitor_count"`
	}
	if err := l.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, err
	}
	out := make([]TimelinePoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, TimelinePoint{Minute: r.Minute.UTC(), VisitorCount: r.VisitorCount})
	}
	return out, nil
}

func (l *MongoLog) CountForToken(ctx context.Context, token string, since time.Time) (int64, error) {
	return l.coll.CountDocuments(ctx, bson.D{
		{Key: "token", Value: token},
		{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since.UTC()}}},
	})
}

func (l *MongoLog) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return l.coll.CountDocuments(ctx, bson.D{
		{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since.UTC()}}},
	})
}

func (l *MongoLog) TopTokens(ctx context.Context, since time.Time, limit int) ([]TokenCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since.UTC()}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$token"},
			{Key: "events", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "events", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}

	var rows []struct {
		Token  string `bson:"_id"`
		Events int64  `bson:"events"`
	}
	if err := l.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, err
	}
	out := make([]TokenCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, TokenCount{Token: r.Token, Events: r.Events})
	}
	return out, nil
}

func (l *MongoLog) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.coll.DeleteMany(ctx, bson.D{{Key: "created_at", Value: bson.D{{Key: "$lt", Value: cutoff.UTC()}}}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (l *MongoLog) DeleteToken(ctx context.Context, token string) (int64, error) {
	res, err := l.coll.DeleteMany(ctx, bson.D{{Key: "token", Value: token}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (l *MongoLog) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := l.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("mongo aggregate: %w", err)
	}
	return cur.All(ctx, out)
}
