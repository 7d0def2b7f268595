package store

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordsCollection is the collection holding medical records.
const RecordsCollection = "medicalrecords"

// MongoStore persists records as documents, with the conversation embedded.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// mongoRecord is the stored document layout.
type mongoRecord struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	PatientName         string             `bson:"patientName"`
	Symptoms            string             `bson:"symptoms"`
	MedicalHistory      string             `bson:"medicalHistory"`
	Recommendation      string             `bson:"recommendation"`
	SpecialtyReferral   string             `bson:"specialtyReferral"`
	EmergencyReferral   bool               `bson:"emergencyReferral"`
	Summary             string             `bson:"summary"`
	ConsultationDate    time.Time          `bson:"consultationDate"`
	ConversationHistory []Turn             `bson:"conversationHistory"`
}

// ConnectMongo dials MongoDB, pings it and ensures the record indexes exist.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.In("store").Code("mongo_connect").Wrapf(err, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, oops.In("store").Code("mongo_ping").Wrapf(err, "failed to ping MongoDB")
	}

	s := NewMongoStore(client, client.Database(database))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// NewMongoStore wraps an existing client and database.
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   db.Collection(RecordsCollection),
		now:    time.Now,
	}
}

// EnsureIndexes creates the indexes backing list ordering and name search.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "consultationDate", Value: -1}}},
		{Keys: bson.D{{Key: "patientName", Value: 1}}},
	})
	if err != nil {
		return oops.In("store").Code("mongo_indexes").Wrapf(err, "failed to create indexes")
	}
	return nil
}

func (s *MongoStore) CreateRecord(ctx context.Context, rec MedicalRecord) (*MedicalRecord, error) {
	rec, err := Prepare(rec, s.now())
	if err != nil {
		return nil, err
	}

	doc := toMongo(rec)
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, oops.In("store").Code("mongo_insert").Wrapf(err, "failed to insert medical record")
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, oops.In("store").Code("mongo_insert").Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	doc.ID = oid

	out := fromMongo(doc)
	return &out, nil
}

func (s *MongoStore) ListRecords(ctx context.Context) ([]MedicalRecord, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoStore) GetRecord(ctx context.Context, id string) (*MedicalRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc mongoRecord
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.In("store").Code("mongo_find").With("id", id).Wrapf(err, "failed to get medical record")
	}

	out := fromMongo(doc)
	return &out, nil
}

func (s *MongoStore) FindRecordsByPatientName(ctx context.Context, name string) ([]MedicalRecord, error) {
	return s.find(ctx, bson.M{
		"patientName": bson.M{
			"$regex":   regexp.QuoteMeta(name),
			"$options": "i",
		},
	})
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]MedicalRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "consultationDate", Value: -1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, oops.In("store").Code("mongo_find").Wrapf(err, "failed to query medical records")
	}
	defer cursor.Close(ctx)

	var docs []mongoRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, oops.In("store").Code("mongo_decode").Wrapf(err, "failed to decode medical records")
	}

	out := make([]MedicalRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromMongo(d))
	}
	return out, nil
}

func toMongo(r MedicalRecord) mongoRecord {
	return mongoRecord{
		PatientName:         r.PatientName,
		Symptoms:            r.Symptoms,
		MedicalHistory:      r.MedicalHistory,
		Recommendation:      r.Recommendation,
		SpecialtyReferral:   r.SpecialtyReferral,
		EmergencyReferral:   r.EmergencyReferral,
		Summary:             r.Summary,
		ConsultationDate:    r.ConsultationDate,
		ConversationHistory: r.ConversationHistory,
	}
}

func fromMongo(d mongoRecord) MedicalRecord {
	history := d.ConversationHistory
	if history == nil {
		history = []Turn{}
	}
	return MedicalRecord{
		ID:                  d.ID.Hex(),
		PatientName:         d.PatientName,
		Symptoms:            d.Symptoms,
		MedicalHistory:      d.MedicalHistory,
		Recommendation:      d.Recommendation,
		SpecialtyReferral:   d.SpecialtyReferral,
		EmergencyReferral:   d.EmergencyReferral,
		Summary:             d.Summary,
		ConsultationDate:    d.ConsultationDate.UTC(),
		ConversationHistory: history,
	}
}
