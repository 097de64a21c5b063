package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoSessionsCollection = "fix_sessions"
	mongoMessagesCollection = "fix_messages"
)

type mongoCounters struct {
	ID      string `bson:"_id"`
	NextOut int    `bson:"next_out"`
	NextIn  int    `bson:"next_in"`
}

type mongoRecord struct {
	SessionID string    `bson:"session_id"`
	Direction string    `bson:"direction"`
	SeqNum    int       `bson:"seq"`
	MsgType   string    `bson:"msg_type"`
	Raw       []byte    `bson:"raw"`
	Timestamp time.Time `bson:"timestamp"`
}

// MongoStore keeps one counters document per identity and one document per
// record, unique on (session_id, direction, seq).
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	messages *mongo.Collection
	claims   *localClaims
}

// OpenMongo connects to uri and prepares collections in database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("fixgate"))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	s, err := NewMongoStore(ctx, client.Database(database))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.client = client
	return s, nil
}

// NewMongoStore uses db without taking ownership of its client.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		sessions: db.Collection(mongoSessionsCollection),
		messages: db.Collection(mongoMessagesCollection),
		claims:   newLocalClaims(),
	}
	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "direction", Value: 1},
			{Key: "seq", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("fix_messages_session_dir_seq_unique"),
	})
	if err != nil {
		return nil, fmt.Errorf("mongo create index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) counters(ctx context.Context, id string) (mongoCounters, error) {
	out := mongoCounters{ID: id, NextOut: 1, NextIn: 1}
	if err := validateID(id); err != nil {
		return out, err
	}
	err := s.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return mongoCounters{ID: id, NextOut: 1, NextIn: 1}, nil
	}
	if err != nil {
		return out, err
	}
	if out.NextOut < 1 {
		out.NextOut = 1
	}
	if out.NextIn < 1 {
		out.NextIn = 1
	}
	return out, nil
}

func (s *MongoStore) setCounter(ctx context.Context, id, field string, seq int) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateSeq(seq); err != nil {
		return err
	}
	_, err := s.sessions.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: seq}}}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) NextOutgoing(ctx context.Context, id string) (int, error) {
	c, err := s.counters(ctx, id)
	return c.NextOut, err
}

func (s *MongoStore) NextIncoming(ctx context.Context, id string) (int, error) {
	c, err := s.counters(ctx, id)
	return c.NextIn, err
}

func (s *MongoStore) SetNextOutgoing(ctx context.Context, id string, seq int) error {
	return s.setCounter(ctx, id, "next_out", seq)
}

func (s *MongoStore) SetNextIncoming(ctx context.Context, id string, seq int) error {
	return s.setCounter(ctx, id, "next_in", seq)
}

func (s *MongoStore) StoreMessage(ctx context.Context, id string, rec Record) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}
	doc := mongoRecord{
		SessionID: id,
		Direction: rec.Direction.String(),
		SeqNum:    rec.SeqNum,
		MsgType:   rec.MsgType,
		Raw:       rec.Raw,
		Timestamp: rec.Timestamp.UTC(),
	}
	filter := bson.D{
		{Key: "session_id", Value: id},
		{Key: "direction", Value: doc.Direction},
		{Key: "seq", Value: rec.SeqNum},
	}
	_, err := s.messages.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetMessages(ctx context.Context, id string, dir Direction, start, end int) ([]Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	filter := bson.D{
		{Key: "session_id", Value: id},
		{Key: "direction", Value: dir.String()},
		{Key: "seq", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lte", Value: end}}},
	}
	cur, err := s.messages.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []mongoRecord
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Record{
			SeqNum:    doc.SeqNum,
			Direction: dir,
			MsgType:   doc.MsgType,
			Raw:       doc.Raw,
			Timestamp: doc.Timestamp,
		})
	}
	if err := checkContiguous(id, out, start, end); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Purge(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := s.messages.DeleteMany(ctx, bson.D{{Key: "session_id", Value: id}}); err != nil {
		return err
	}
	_, err := s.sessions.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	return err
}

func (s *MongoStore) Claim(ctx context.Context, id string) (func(), error) {
	return s.claims.Claim(ctx, id)
}

func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
