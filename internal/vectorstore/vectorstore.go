// Package vectorstore wraps a Qdrant collection behind the narrow
// contract the ingestion pipeline and query engine need: collection
// lifecycle, batch point upserts, point deletion, filtered similarity
// search, and the paginated full point-id scan the prune path uses.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/librarian/librarian/internal/librarianerr"
)

// Config holds connection parameters for a Qdrant collection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// Point is a single vector with its opaque point id and payload,
// ready for upsert.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchFilter restricts a similarity search by payload fields. Each
// slice field is OR'd internally (match any of the listed values) and
// AND'd against the other fields.
type SearchFilter struct {
	SourceIDs   []string
	SourceTypes []string
	// PathPrefix restricts results to payloads whose "source_uri" field
	// starts with this prefix.
	PathPrefix string
}

// SearchResult is a single scored match.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Stats summarizes a collection.
type Stats struct {
	PointsCount uint64
}

// Store wraps a Qdrant collection.
type Store struct {
	client     *qdrant.Client
	collection string
}

// Open connects to Qdrant. It does not create or validate the
// collection; call EnsureCollection before use.
func Open(cfg Config) (*Store, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: create client: %w", err))
	}
	return &Store{client: client, collection: cfg.Collection}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: close: %w", err))
	}
	return nil
}

// EnsureCollection creates the collection with the given vector
// dimension if it does not exist. If it exists, it verifies the
// on-disk vector size matches dimension, failing with a remediation
// hint on mismatch. Named vector configurations are rejected.
func (s *Store) EnsureCollection(ctx context.Context, dimension uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: check collection exists: %w", err))
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dimension,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: create collection %q: %w", s.collection, err))
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: get collection info: %w", err))
	}
	params := info.GetConfig().GetParams()
	vectorsConfig := params.GetVectorsConfig()
	if named := vectorsConfig.GetParamsMap(); named != nil {
		return librarianerr.Newf(librarianerr.KindQdrant,
			"vectorstore: collection %q uses named vector configurations, which are not supported", s.collection)
	}
	existing := vectorsConfig.GetParams().GetSize()
	if existing != dimension {
		return librarianerr.Newf(librarianerr.KindQdrant,
			"vectorstore: collection %q has vector size %d, but the configured embedder produces dimension %d; use a new collection name, or reindex with the expected dimension",
			s.collection, existing, dimension).WithField("expected_dimension", dimension).WithField("actual_dimension", existing)
	}
	return nil
}

// UpsertPoints stores or updates a batch of points. If any vector's
// length differs from dimension, the entire batch is rejected before
// any network call is made.
func (s *Store) UpsertPoints(ctx context.Context, points []Point, dimension uint64) error {
	for _, p := range points {
		if uint64(len(p.Vector)) != dimension {
			return librarianerr.Newf(librarianerr.KindQdrant,
				"vectorstore: point %q has vector length %d, expected %d", p.ID, len(p.Vector), dimension)
		}
	}

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qpoints,
	}); err != nil {
		return librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: upsert: %w", err))
	}
	return nil
}

// DeletePoints removes points by id. A no-op for an empty slice.
func (s *Store) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	qids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		qids = append(qids, qdrant.NewIDUUID(id))
	}
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qids...),
	}); err != nil {
		return librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: delete: %w", err))
	}
	return nil
}

// Search runs a similarity search, optionally restricted by filter,
// and returns results ordered by descending score. PathPrefix is
// applied client-side after the vector search, since Qdrant's exact-
// match field conditions cannot express a prefix test.
func (s *Store) Search(ctx context.Context, vector []float32, k int, filter *SearchFilter) ([]SearchResult, error) {
	// Over-fetch when any filter will be applied client-side (path
	// prefix, or a multi-value source_ids/source_types list), so
	// filtering doesn't starve the result set below k.
	fetchLimit := k
	if filter != nil && (filter.PathPrefix != "" || len(filter.SourceIDs) > 1 || len(filter.SourceTypes) > 1) {
		fetchLimit = k * 4
	}
	limit := uint64(fetchLimit)

	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if filter != nil {
		if f := buildFilter(filter); f != nil {
			query.Filter = f
		}
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: search: %w", err))
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		payload := payloadToMap(r.GetPayload())
		if filter != nil {
			if filter.PathPrefix != "" {
				uri, _ := payload["source_uri"].(string)
				if !strings.HasPrefix(uri, filter.PathPrefix) {
					continue
				}
			}
			if len(filter.SourceIDs) > 1 {
				id, _ := payload["source_id"].(string)
				if !matchesAny(id, filter.SourceIDs) {
					continue
				}
			}
			if len(filter.SourceTypes) > 1 {
				typ, _ := payload["source_type"].(string)
				if !matchesAny(typ, filter.SourceTypes) {
					continue
				}
			}
		}
		out = append(out, SearchResult{
			ID:      r.GetId().GetUuid(),
			Score:   r.GetScore(),
			Payload: payload,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// buildFilter only narrows the server-side query when exactly one
// value is given per field; multi-value source_ids/source_types lists
// are applied client-side in Search alongside PathPrefix, since a
// single scalar Match condition cannot express "any of N values"
// without depending on the client's less-common filter builders.
func buildFilter(filter *SearchFilter) *qdrant.Filter {
	var must []*qdrant.Condition
	if len(filter.SourceIDs) == 1 {
		must = append(must, qdrant.NewMatch("source_id", filter.SourceIDs[0]))
	}
	if len(filter.SourceTypes) == 1 {
		must = append(must, qdrant.NewMatch("source_type", filter.SourceTypes[0]))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func matchesAny(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch {
		case v.GetStringValue() != "":
			out[k] = v.GetStringValue()
		case v.GetIntegerValue() != 0:
			out[k] = v.GetIntegerValue()
		case v.GetBoolValue():
			out[k] = v.GetBoolValue()
		case v.GetDoubleValue() != 0:
			out[k] = v.GetDoubleValue()
		default:
			out[k] = v.String()
		}
	}
	return out
}

// scrollPageSize is the page size used when paginating through an
// entire collection via Scroll.
const scrollPageSize = 256

// ListAllPointIDs scans the entire collection and returns every point
// id. This is expensive and is only used by the prune reconciliation
// path. Pagination follows the standard scroll pattern: keep paging
// with the last returned point as the next offset until a page comes
// back shorter than the requested limit.
func (s *Store) ListAllPointIDs(ctx context.Context) ([]string, error) {
	var out []string
	var offset *qdrant.PointId

	for {
		limit := uint32(scrollPageSize)
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(false),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		if err != nil {
			return nil, librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: scroll: %w", err))
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			out = append(out, p.GetId().GetUuid())
		}
		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}
	return out, nil
}

// GetStats reports the collection's current point count.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("vectorstore: get collection info: %w", err))
	}
	return &Stats{PointsCount: info.GetPointsCount()}, nil
}
