package session

import (
	"context"
	"sort"
	"time"

	"vidsage/video-backend/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const sessionCollectionName = "sessions"

const defaultConnectTimeout = 10 * time.Second

// sessionDoc is the MongoDB document holding one session's state.
// Transcripts and analyses are arrays rather than maps because filenames
// contain dots, which Mongo map keys cannot.
type sessionDoc struct {
	ID          string            `bson:"_id"`
	Files       []string          `bson:"files"`
	Transcripts []transcriptEntry `bson:"transcripts"`
	Analyses    []analysisEntry   `bson:"analyses"`
	UpdatedAt   time.Time         `bson:"updatedAt"`
}

type transcriptEntry struct {
	Filename string `bson:"filename"`
	Text     string `bson:"text"`
}

type analysisEntry struct {
	Key    string                `bson:"key"`
	Result domain.AnalysisResult `bson:"result"`
}

// mongoStore implements Store on MongoDB so session state survives
// multi-instance deployments and restarts. One document per session; the
// TTL index on updatedAt gives the same expiry behavior as the memory
// backend's cache TTL.
type mongoStore struct {
	collection *mongo.Collection
}

// ConnectMongo establishes and verifies a MongoDB connection.
func ConnectMongo(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}
	return client, nil
}

// NewMongoStore creates a Mongo-backed session store. ttl controls the TTL
// index on updatedAt; sessions idle longer than ttl disappear server-side.
func NewMongoStore(db *mongo.Database, ttl time.Duration) (Store, error) {
	coll := db.Collection(sessionCollectionName)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updatedAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
	})
	if err != nil {
		return nil, err
	}

	return &mongoStore{collection: coll}, nil
}

// touch is the shared update scaffolding: upsert the session document and
// refresh its expiry.
func (m *mongoStore) touch(ctx context.Context, sessionID string, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["updatedAt"] = time.Now().UTC()
	update["$set"] = set

	opts := options.Update().SetUpsert(true)
	_, err := m.collection.UpdateOne(ctx, bson.M{"_id": sessionID}, update, opts)
	return err
}

func (m *mongoStore) load(ctx context.Context, sessionID string) (*sessionDoc, error) {
	var doc sessionDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (m *mongoStore) RecordOwnership(ctx context.Context, sessionID, filename string) error {
	return m.touch(ctx, sessionID, bson.M{"$push": bson.M{"files": filename}})
}

func (m *mongoStore) ListOwned(ctx context.Context, sessionID string) ([]string, error) {
	doc, err := m.load(ctx, sessionID)
	if err != nil || doc == nil {
		return nil, err
	}
	out := make([]string, len(doc.Files))
	copy(out, doc.Files)
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

func (m *mongoStore) CacheTranscript(ctx context.Context, sessionID, filename, transcript string) error {
	// Re-caching the same filename appends a fresh entry; readers scan from
	// the back, so the newest entry wins.
	return m.touch(ctx, sessionID, bson.M{
		"$push": bson.M{"transcripts": transcriptEntry{Filename: filename, Text: transcript}},
	})
}

func (m *mongoStore) GetTranscript(ctx context.Context, sessionID, filename string) (string, bool, error) {
	doc, err := m.load(ctx, sessionID)
	if err != nil || doc == nil {
		return "", false, err
	}
	for i := len(doc.Transcripts) - 1; i >= 0; i-- {
		if doc.Transcripts[i].Filename == filename {
			return doc.Transcripts[i].Text, true, nil
		}
	}
	return "", false, nil
}

func (m *mongoStore) LatestTranscript(ctx context.Context, sessionID string) (string, bool, error) {
	doc, err := m.load(ctx, sessionID)
	if err != nil || doc == nil {
		return "", false, err
	}
	if len(doc.Transcripts) == 0 {
		return "", false, nil
	}
	return doc.Transcripts[len(doc.Transcripts)-1].Text, true, nil
}

func (m *mongoStore) CacheAnalysis(ctx context.Context, sessionID, filename string, mode domain.AnalysisMode, result domain.AnalysisResult) error {
	key := analysisKey(filename, mode)
	// Drop any stale entry for the key before pushing the new one.
	if err := m.touch(ctx, sessionID, bson.M{
		"$pull": bson.M{"analyses": bson.M{"key": key}},
	}); err != nil {
		return err
	}
	return m.touch(ctx, sessionID, bson.M{
		"$push": bson.M{"analyses": analysisEntry{Key: key, Result: result}},
	})
}

func (m *mongoStore) GetAnalysis(ctx context.Context, sessionID, filename string, mode domain.AnalysisMode) (domain.AnalysisResult, bool, error) {
	doc, err := m.load(ctx, sessionID)
	if err != nil || doc == nil {
		return domain.AnalysisResult{}, false, err
	}
	key := analysisKey(filename, mode)
	for i := len(doc.Analyses) - 1; i >= 0; i-- {
		if doc.Analyses[i].Key == key {
			return doc.Analyses[i].Result, true, nil
		}
	}
	return domain.AnalysisResult{}, false, nil
}

func (m *mongoStore) Release(ctx context.Context, sessionID string) ([]string, error) {
	var doc sessionDoc
	err := m.collection.FindOneAndDelete(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return doc.Files, nil
}
