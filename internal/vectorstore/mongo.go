package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps passages in a MongoDB collection. Similarity is computed
// in process unless Atlas Vector Search is enabled for the collection.
type MongoStore struct {
	collection   *mongo.Collection
	embedder     Embedder
	vectorSearch bool
	vectorIndex  string
	lastSeq      atomic.Int64
}

type MongoOptions struct {
	// VectorSearch routes queries through $vectorSearch on VectorIndex.
	VectorSearch bool
	VectorIndex  string
}

type passageDoc struct {
	ID        string         `bson:"_id"`
	Seq       int64          `bson:"seq"`
	Document  string         `bson:"document"`
	Metadata  map[string]any `bson:"metadata"`
	Embedding []float32      `bson:"embedding"`
	CreatedAt time.Time      `bson:"created_at"`
	Score     float64        `bson:"score,omitempty"`
}

func NewMongoStore(collection *mongo.Collection, embedder Embedder, opts MongoOptions) *MongoStore {
	return &MongoStore{
		collection:   collection,
		embedder:     embedder,
		vectorSearch: opts.VectorSearch,
		vectorIndex:  opts.VectorIndex,
	}
}

// Name returns the backing collection name.
func (s *MongoStore) Name() string {
	return s.collection.Name()
}

// nextSeqBlock reserves n insertion sequence numbers. Sequences come from the
// wall clock so they stay ordered across processes.
func (s *MongoStore) nextSeqBlock(n int) int64 {
	for {
		last := s.lastSeq.Load()
		base := time.Now().UnixNano()
		if base <= last {
			base = last + 1
		}
		if s.lastSeq.CompareAndSwap(last, base+int64(n)-1) {
			return base
		}
	}
}

func (s *MongoStore) Add(ctx context.Context, ids, documents []string, metadatas []map[string]any) error {
	if err := validateBatch(ids, documents, metadatas); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	existing, err := s.collection.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("check existing ids: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("%w: %d of %d ids already stored", ErrDuplicateID, existing, len(ids))
	}

	vectors, err := embedAll(ctx, s.embedder, documents)
	if err != nil {
		return err
	}

	base := s.nextSeqBlock(len(ids))
	now := time.Now().UTC()
	docs := make([]interface{}, len(ids))
	for i, id := range ids {
		docs[i] = passageDoc{
			ID:        id,
			Seq:       base + int64(i),
			Document:  documents[i],
			Metadata:  metadatas[i],
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}

	if _, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		s.rollback(ctx, ids, base, len(ids))
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateID, err)
		}
		return fmt.Errorf("insert passages: %w", err)
	}
	return nil
}

// rollback removes whatever part of a failed batch was written. The seq
// range guards passages stored by someone else under the same ids.
func (s *MongoStore) rollback(ctx context.Context, ids []string, base int64, n int) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	_, _ = s.collection.DeleteMany(cleanupCtx, bson.M{
		"_id": bson.M{"$in": ids},
		"seq": bson.M{"$gte": base, "$lt": base + int64(n)},
	})
}

func (s *MongoStore) Query(ctx context.Context, queryTexts []string, nResults int) (*QueryResult, error) {
	if len(queryTexts) == 0 {
		return nil, ErrEmptyQuery
	}
	if nResults < 0 {
		nResults = 0
	}

	vectors, err := embedAll(ctx, s.embedder, queryTexts)
	if err != nil {
		return nil, err
	}

	result := newQueryResult(len(queryTexts))

	if s.vectorSearch {
		for i, vec := range vectors {
			passages, dists, err := s.atlasSearch(ctx, vec, nResults)
			if err != nil {
				return nil, err
			}
			result.setRow(i, passages, dists)
		}
		return result, nil
	}

	all, err := s.load(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	for i, vec := range vectors {
		passages, dists, err := rank(vec, all, nResults)
		if err != nil {
			return nil, err
		}
		result.setRow(i, passages, dists)
	}
	return result, nil
}

// atlasSearch maps the normalized cosine score (1 + cos) / 2 back onto
// cosine distance.
func (s *MongoStore) atlasSearch(ctx context.Context, vec []float32, n int) ([]passage, []float64, error) {
	if n == 0 {
		return []passage{}, []float64{}, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.vectorIndex},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: vec},
			{Key: "numCandidates", Value: n * 10},
			{Key: "limit", Value: n},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "document", Value: 1},
			{Key: "metadata", Value: 1},
			{Key: "seq", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, nil, fmt.Errorf("vector search: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []passageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, nil, fmt.Errorf("decode vector search results: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].Seq < docs[j].Seq
	})

	passages := make([]passage, len(docs))
	dists := make([]float64, len(docs))
	for i, d := range docs {
		passages[i] = d.toPassage()
		dists[i] = clampDistance(2 - 2*d.Score)
	}
	return passages, dists, nil
}

func (s *MongoStore) load(ctx context.Context, filter bson.M) ([]passage, error) {
	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("load passages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []passageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode passages: %w", err)
	}

	passages := make([]passage, len(docs))
	for i, d := range docs {
		passages[i] = d.toPassage()
	}
	return passages, nil
}

func (s *MongoStore) Get(ctx context.Context, ids []string) (*GetResult, error) {
	filter := bson.M{}
	if ids != nil {
		filter = bson.M{"_id": bson.M{"$in": ids}}
	}

	passages, err := s.load(ctx, filter)
	if err != nil {
		return nil, err
	}

	if ids != nil {
		byID := make(map[string]passage, len(passages))
		for _, p := range passages {
			byID[p.id] = p
		}
		passages = passages[:0]
		for _, id := range ids {
			if p, ok := byID[id]; ok {
				passages = append(passages, p)
			}
		}
	}

	result := &GetResult{
		IDs:       make([]string, len(passages)),
		Documents: make([]string, len(passages)),
		Metadatas: make([]map[string]any, len(passages)),
	}
	for i, p := range passages {
		result.IDs[i] = p.id
		result.Documents[i] = p.document
		result.Metadatas[i] = p.metadata
	}
	return result, nil
}

func (s *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return int(n), nil
}

func (s *MongoStore) Reset(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("reset collection %s: %w", s.collection.Name(), err)
	}
	return nil
}

func (d passageDoc) toPassage() passage {
	metadata := d.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return passage{
		id:        d.ID,
		document:  d.Document,
		metadata:  metadata,
		embedding: d.Embedding,
	}
}
