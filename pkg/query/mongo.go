package query

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/semaphore"

	"github.com/toeic4all/question-api/pkg/question"
)

const (
	collPart5 = "part5_questions"
	collPart6 = "part6_sets"
	collPart7 = "part7_sets"

	// maxConcurrentQueries bounds how many document-store queries may be
	// in flight at once; waiters beyond the limit block until a slot
	// frees or their request context is cancelled.
	maxConcurrentQueries = 100
)

// MongoService is the document-store implementation of Service. List and
// count queries log store failures and return empty results, so callers see
// failures as legitimate zero-match queries.
type MongoService struct {
	db  *mongo.Database
	sem *semaphore.Weighted
}

// NewMongoService connects to the document store and verifies the connection
// before returning.
func NewMongoService(ctx context.Context, uri, database string) (*MongoService, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(time.Minute)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create mongodb client")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}

	log.Infof("mongodb connection established, database %q", database)
	return &MongoService{
		db:  client.Database(database),
		sem: semaphore.NewWeighted(maxConcurrentQueries),
	}, nil
}

// Close disconnects the underlying client.
func (s *MongoService) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// ServerStatus reports the store's connection and uptime counters for the
// admin status endpoint.
func (s *MongoService) ServerStatus(ctx context.Context) (map[string]interface{}, error) {
	var status bson.M
	err := s.db.RunCommand(ctx, bson.D{{Key: "serverStatus", Value: 1}}).Decode(&status)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read server status")
	}
	return map[string]interface{}{
		"status":      "online",
		"connections": status["connections"],
		"network":     status["network"],
		"uptime":      status["uptime"],
		"ok":          status["ok"],
	}, nil
}

func (f Part5Filter) query() bson.M {
	q := bson.M{}
	if f.Category != "" {
		q["questionCategory"] = f.Category
	}
	if f.Subtype != "" {
		q["questionSubType"] = f.Subtype
	}
	if f.Difficulty != "" {
		q["difficulty"] = f.Difficulty
	}
	if f.Keyword != "" {
		q["$or"] = bson.A{
			bson.M{"questionText": bson.M{"$regex": f.Keyword, "$options": "i"}},
			bson.M{"choices.text": bson.M{"$regex": f.Keyword, "$options": "i"}},
		}
	}
	return q
}

func (f Part6Filter) query() bson.M {
	q := bson.M{}
	if f.PassageType != "" {
		q["passageType"] = f.PassageType
	}
	if f.Difficulty != "" {
		q["difficulty"] = f.Difficulty
	}
	return q
}

func (f Part7Filter) query() bson.M {
	q := bson.M{}
	if f.SetType != "" {
		q["setType"] = f.SetType
	}
	// Multiple passage types select sets containing ALL of them, so a
	// Double set with [email, letter] does not match email+notice.
	switch len(f.PassageTypes) {
	case 0:
	case 1:
		q["passages.type"] = f.PassageTypes[0]
	default:
		clauses := make(bson.A, 0, len(f.PassageTypes))
		for _, pt := range f.PassageTypes {
			clauses = append(clauses, bson.M{"passages.type": pt})
		}
		q["$and"] = clauses
	}
	if f.Difficulty != "" {
		q["difficulty"] = f.Difficulty
	}
	return q
}

// part7LimitCap is the per-set-type ceiling on how many Part 7 sets one
// request may fetch. Unknown set types get the most conservative cap.
func part7LimitCap(setType string) int {
	switch setType {
	case "Single":
		return 5
	case "Double", "Triple":
		return 2
	default:
		return 1
	}
}

// ClampPart7Limit bounds a requested Part 7 page size by the set type's cap.
func ClampPart7Limit(setType string, limit int) int {
	if ceil := part7LimitCap(setType); limit > ceil {
		return ceil
	}
	return limit
}

// sample runs the filter+random-sample+paginate pipeline shared by all list
// queries, behind the concurrency gate.
func (s *MongoService) sample(ctx context.Context, coll string, match bson.M, limit, page int, out interface{}) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "query gate wait cancelled")
	}
	defer s.sem.Release(1)

	skip := (page - 1) * limit
	if skip < 0 {
		skip = 0
	}
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$sample", Value: bson.M{"size": limit + skip}}},
		bson.D{{Key: "$skip", Value: skip}},
		bson.D{{Key: "$limit", Value: limit}},
	}

	cur, err := s.db.Collection(coll).Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	return cur.All(ctx, out)
}

func (s *MongoService) count(ctx context.Context, coll string, match bson.M) (int64, error) {
	return s.db.Collection(coll).CountDocuments(ctx, match)
}

// distinct enumerates the values of a field actually present in stored
// documents, sorted ascending.
func (s *MongoService) distinct(ctx context.Context, coll, field string, match bson.M) ([]string, error) {
	pipeline := mongo.Pipeline{}
	if len(match) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.M{"_id": "$" + field}}},
		bson.D{{Key: "$sort", Value: bson.M{"_id": 1}}},
	)

	cur, err := s.db.Collection(coll).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Value string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Value)
	}
	return values, nil
}

func (s *MongoService) ListPart5(ctx context.Context, f Part5Filter, limit, page int) ([]question.Part5Question, error) {
	var out []question.Part5Question
	if err := s.sample(ctx, collPart5, f.query(), limit, page, &out); err != nil {
		log.Errorf("part5 list query failed: %v", err)
		return nil, nil
	}
	return out, nil
}

func (s *MongoService) CountPart5(ctx context.Context, f Part5Filter) (int64, error) {
	n, err := s.count(ctx, collPart5, f.query())
	if err != nil {
		log.Errorf("part5 count query failed: %v", err)
		return 0, nil
	}
	return n, nil
}

func (s *MongoService) Part5Answer(ctx context.Context, id string) (*question.Answer, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var answer question.Answer
	err = s.db.Collection(collPart5).FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{
			"answer":      1,
			"explanation": 1,
			"vocabulary":  1,
		})).Decode(&answer)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		log.Errorf("part5 answer lookup failed: %v", err)
		return nil, nil
	}
	return &answer, nil
}

func (s *MongoService) Part5Categories(ctx context.Context) ([]string, error) {
	values, err := s.distinct(ctx, collPart5, "questionCategory", nil)
	if err != nil {
		log.Errorf("part5 categories query failed: %v", err)
		return nil, nil
	}
	return values, nil
}

func (s *MongoService) Part5Subtypes(ctx context.Context, category string) ([]string, error) {
	var match bson.M
	if category != "" {
		match = bson.M{"questionCategory": category}
	}
	values, err := s.distinct(ctx, collPart5, "questionSubType", match)
	if err != nil {
		log.Errorf("part5 subtypes query failed: %v", err)
		return nil, nil
	}
	return values, nil
}

func (s *MongoService) Part5Difficulties(ctx context.Context) ([]string, error) {
	values, err := s.distinct(ctx, collPart5, "difficulty", nil)
	if err != nil {
		log.Errorf("part5 difficulties query failed: %v", err)
		return nil, nil
	}
	return values, nil
}

func (s *MongoService) ListPart6Sets(ctx context.Context, f Part6Filter, limit, page int) ([]question.Part6Set, error) {
	var out []question.Part6Set
	if err := s.sample(ctx, collPart6, f.query(), limit, page, &out); err != nil {
		log.Errorf("part6 list query failed: %v", err)
		return nil, nil
	}
	return out, nil
}

func (s *MongoService) CountPart6Sets(ctx context.Context, f Part6Filter) (int64, error) {
	n, err := s.count(ctx, collPart6, f.query())
	if err != nil {
		log.Errorf("part6 count query failed: %v", err)
		return 0, nil
	}
	return n, nil
}

func (s *MongoService) Part6Answer(ctx context.Context, setID string, seq int) (*question.Answer, error) {
	return s.setAnswer(ctx, collPart6, setID, seq)
}

func (s *MongoService) Part6PassageTypes(ctx context.Context) ([]string, error) {
	values, err := s.distinct(ctx, collPart6, "passageType", nil)
	if err != nil {
		log.Errorf("part6 passage types query failed: %v", err)
		return nil, nil
	}
	return values, nil
}

func (s *MongoService) Part6Difficulties(ctx context.Context, passageType string) ([]string, error) {
	var match bson.M
	if passageType != "" {
		match = bson.M{"passageType": passageType}
	}
	values, err := s.distinct(ctx, collPart6, "difficulty", match)
	if err != nil {
		log.Errorf("part6 difficulties query failed: %v", err)
		return nil, nil
	}
	return values, nil
}

func (s *MongoService) ListPart7Sets(ctx context.Context, f Part7Filter, limit, page int) ([]question.Part7Set, error) {
	limit = ClampPart7Limit(f.SetType, limit)
	var out []question.Part7Set
	if err := s.sample(ctx, collPart7, f.query(), limit, page, &out); err != nil {
		log.Errorf("part7 list query failed: %v", err)
		return nil, nil
	}
	return out, nil
}

func (s *MongoService) CountPart7Sets(ctx context.Context, f Part7Filter) (int64, error) {
	n, err := s.count(ctx, collPart7, f.query())
	if err != nil {
		log.Errorf("part7 count query failed: %v", err)
		return 0, nil
	}
	return n, nil
}

func (s *MongoService) Part7Answer(ctx context.Context, setID string, seq int) (*question.Answer, error) {
	return s.setAnswer(ctx, collPart7, setID, seq)
}

func (s *MongoService) Part7SetTypes(ctx context.Context) ([]string, error) {
	values, err := s.distinct(ctx, collPart7, "setType", nil)
	if err != nil {
		log.Errorf("part7 set types query failed: %v", err)
		return nil, nil
	}
	return values, nil
}

// Part7PassageTypes enumerates the passage types appearing inside stored
// sets, optionally restricted to one set type. The passages array is unwound
// so each element's type is counted.
func (s *MongoService) Part7PassageTypes(ctx context.Context, setType string) ([]string, error) {
	pipeline := mongo.Pipeline{}
	if setType != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"setType": setType}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$unwind", Value: "$passages"}},
		bson.D{{Key: "$group", Value: bson.M{"_id": "$passages.type"}}},
		bson.D{{Key: "$sort", Value: bson.M{"_id": 1}}},
	)

	cur, err := s.db.Collection(collPart7).Aggregate(ctx, pipeline)
	if err != nil {
		log.Errorf("part7 passage types query failed: %v", err)
		return nil, nil
	}
	defer cur.Close(ctx)

	var rows []struct {
		Value string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		log.Errorf("part7 passage types query failed: %v", err)
		return nil, nil
	}
	values := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Value)
	}
	return values, nil
}

// Part7PassageCombinations returns the passage-type combinations actually
// stored for a Double or Triple set type, most frequent first, capped at the
// top 20. Other set types have no combinations and return empty.
func (s *MongoService) Part7PassageCombinations(ctx context.Context, setType string) ([][]string, error) {
	if setType != "Double" && setType != "Triple" {
		return nil, nil
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"setType": setType}}},
		bson.D{{Key: "$project", Value: bson.M{
			"_id": 0,
			"passage_types": bson.M{
				"$map": bson.M{"input": "$passages", "as": "p", "in": "$$p.type"},
			},
		}}},
		bson.D{{Key: "$group", Value: bson.M{"_id": "$passage_types", "count": bson.M{"$sum": 1}}}},
		bson.D{{Key: "$sort", Value: bson.M{"count": -1}}},
		bson.D{{Key: "$limit", Value: 20}},
	}

	cur, err := s.db.Collection(collPart7).Aggregate(ctx, pipeline)
	if err != nil {
		log.Errorf("part7 passage combinations query failed: %v", err)
		return nil, nil
	}
	defer cur.Close(ctx)

	var rows []struct {
		Types []string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		log.Errorf("part7 passage combinations query failed: %v", err)
		return nil, nil
	}
	combinations := make([][]string, 0, len(rows))
	for _, r := range rows {
		combinations = append(combinations, r.Types)
	}
	return combinations, nil
}

func (s *MongoService) Part7Difficulties(ctx context.Context, setType string) ([]string, error) {
	var match bson.M
	if setType != "" {
		match = bson.M{"setType": setType}
	}
	values, err := s.distinct(ctx, collPart7, "difficulty", match)
	if err != nil {
		log.Errorf("part7 difficulties query failed: %v", err)
		return nil, nil
	}
	return values, nil
}

// setAnswer extracts one sub-question's answer payload from a Part 6 or
// Part 7 set document.
func (s *MongoService) setAnswer(ctx context.Context, coll, setID string, seq int) (*question.Answer, error) {
	oid, err := primitive.ObjectIDFromHex(setID)
	if err != nil {
		return nil, nil
	}

	var doc struct {
		ID        primitive.ObjectID `bson:"_id"`
		Questions []struct {
			Seq         int                       `bson:"seq"`
			Answer      string                    `bson:"answer"`
			Explanation string                    `bson:"explanation"`
			Vocabulary  []question.VocabularyItem `bson:"vocabulary"`
		} `bson:"questions"`
	}
	err = s.db.Collection(coll).FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"questions": 1})).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		log.Errorf("set answer lookup failed: %v", err)
		return nil, nil
	}

	for _, q := range doc.Questions {
		if q.Seq == seq {
			return &question.Answer{
				ID:          doc.ID,
				Answer:      q.Answer,
				Explanation: q.Explanation,
				Vocabulary:  q.Vocabulary,
			}, nil
		}
	}
	return nil, nil
}
