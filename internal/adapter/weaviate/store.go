package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"smartdoc/internal/vector"
)

// chunkNamespace seeds the UUIDv5 object IDs so a (doc, chunk index) pair
// always maps to the same object.
var chunkNamespace = uuid.MustParse("6f1c2b8e-3d4a-5e6f-8a9b-0c1d2e3f4a5b")

const pageSize = 100

type Store struct {
	client    *weaviate.Client
	className string
}

func NewStore(client *weaviate.Client, className string) *Store {
	if className == "" {
		className = DefaultClass
	}
	return &Store{client: client, className: className}
}

// ObjectID is the deterministic Weaviate object ID of one chunk.
func ObjectID(docID string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+"#"+strconv.Itoa(chunkIndex))).String()
}

// EnsureSchema creates or upgrades the chunk class. Bootstrap retries it
// while Weaviate starts.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, clientSchema{client: s.client}, s.className)
}

func (s *Store) Upsert(ctx context.Context, docID, filename string, recs []vector.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	objs := make([]*models.Object, 0, len(recs))
	for _, r := range recs {
		objs = append(objs, &models.Object{
			Class: s.className,
			ID:    strfmt.UUID(ObjectID(docID, r.ChunkIndex)),
			Properties: map[string]interface{}{
				propDocID:      docID,
				propChunkIndex: r.ChunkIndex,
				propSection:    r.Section,
				propContent:    r.Text,
				propFilename:   filename,
			},
			Vector: models.C11yVector(r.Embedding),
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate batch: %w", err)
	}

	written := 0
	var failures []string
	for _, o := range resp {
		if o.Result != nil && o.Result.Errors != nil && len(o.Result.Errors.Error) > 0 {
			for _, e := range o.Result.Errors.Error {
				failures = append(failures, e.Message)
			}
			continue
		}
		written++
	}
	if len(failures) > 0 {
		return written, fmt.Errorf("weaviate batch: %d objects failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return written, nil
}

func (s *Store) Delete(ctx context.Context, docID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithOutput("minimal").
		WithWhere(docFilter(docID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate delete %s: %w", docID, err)
	}
	return nil
}

func (s *Store) Has(ctx context.Context, docID string) bool {
	rows, err := s.get(ctx, docFilter(docID), nil, 1, 0, graphql.Field{Name: propChunkIndex})
	if err != nil {
		slog.WarnContext(ctx, "weaviate existence check failed", "doc_id", docID, "error", err)
		return false
	}
	return len(rows) > 0
}

func (s *Store) Query(ctx context.Context, docID string, embedding []float32, topK int) []vector.Match {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}
	near := s.client.GraphQL().NearVectorArgBuilder().WithVector(embedding)
	rows, err := s.get(ctx, docFilter(docID), near, topK, 0,
		graphql.Field{Name: propChunkIndex},
		graphql.Field{Name: propSection},
		graphql.Field{Name: propContent},
		graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	)
	if err != nil {
		slog.WarnContext(ctx, "weaviate query failed", "doc_id", docID, "error", err)
		return nil
	}

	matches := make([]vector.Match, 0, len(rows))
	for _, row := range rows {
		m := vector.Match{
			ChunkIndex: intProp(row, propChunkIndex),
			Section:    stringProp(row, propSection),
			Text:       stringProp(row, propContent),
		}
		if add, ok := row["_additional"].(map[string]interface{}); ok {
			m.Similarity = 1 - floatValue(add["distance"])
		}
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches
}

func (s *Store) Texts(ctx context.Context, docID string, limit int) []string {
	if limit <= 0 {
		limit = pageSize
	}
	var out []string
	for offset := 0; len(out) < limit; offset += pageSize {
		n := min(pageSize, limit-len(out))
		rows, err := s.getSorted(ctx, docID, n, offset,
			graphql.Field{Name: propChunkIndex},
			graphql.Field{Name: propContent},
		)
		if err != nil {
			slog.WarnContext(ctx, "weaviate text scan failed", "doc_id", docID, "error", err)
			return out
		}
		for _, row := range rows {
			out = append(out, stringProp(row, propContent))
		}
		if len(rows) < n {
			break
		}
	}
	return out
}

func (s *Store) ListDocuments(ctx context.Context) []vector.DocumentInfo {
	fields := []graphql.Field{
		{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}},
		{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
		{Name: propFilename, Fields: []graphql.Field{
			{Name: "topOccurrences", Fields: []graphql.Field{{Name: "value"}}},
		}},
	}

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithGroupBy(propDocID).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		slog.WarnContext(ctx, "weaviate list documents failed", "error", err)
		return nil
	}
	if len(res.Errors) > 0 {
		slog.WarnContext(ctx, "weaviate list documents failed", "error", res.Errors[0].Message)
		return nil
	}

	var docs []vector.DocumentInfo
	for _, row := range s.rows(res.Data, "Aggregate") {
		info := vector.DocumentInfo{}
		if g, ok := row["groupedBy"].(map[string]interface{}); ok {
			info.DocID, _ = g["value"].(string)
		}
		if m, ok := row["meta"].(map[string]interface{}); ok {
			info.Chunks = int(floatValue(m["count"]))
		}
		if f, ok := row[propFilename].(map[string]interface{}); ok {
			if top, ok := f["topOccurrences"].([]interface{}); ok && len(top) > 0 {
				if first, ok := top[0].(map[string]interface{}); ok {
					info.Filename, _ = first["value"].(string)
				}
			}
		}
		if info.DocID != "" {
			docs = append(docs, info)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
	return docs
}

// Rename rewrites the filename payload of every chunk of docID.
func (s *Store) Rename(ctx context.Context, docID, filename string) error {
	var ids []string
	for offset := 0; ; offset += pageSize {
		rows, err := s.get(ctx, docFilter(docID), nil, pageSize, offset,
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
		)
		if err != nil {
			return fmt.Errorf("weaviate rename %s: %w", docID, err)
		}
		for _, row := range rows {
			if add, ok := row["_additional"].(map[string]interface{}); ok {
				if id, ok := add["id"].(string); ok {
					ids = append(ids, id)
				}
			}
		}
		if len(rows) < pageSize {
			break
		}
	}

	for _, id := range ids {
		err := s.client.Data().Updater().
			WithMerge().
			WithID(id).
			WithClassName(s.className).
			WithProperties(map[string]interface{}{propFilename: filename}).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("weaviate rename %s: %w", docID, err)
		}
	}
	return nil
}

func (s *Store) Health(ctx context.Context) vector.Health {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	switch {
	case err != nil:
		return vector.Health{OK: false, Backend: "weaviate", Detail: err.Error()}
	case !ready:
		return vector.Health{OK: false, Backend: "weaviate", Detail: "not ready"}
	}
	return vector.Health{OK: true, Backend: "weaviate"}
}

func (s *Store) get(ctx context.Context, where *filters.WhereBuilder, near *graphql.NearVectorArgumentBuilder, limit, offset int, fields ...graphql.Field) ([]map[string]interface{}, error) {
	q := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithWhere(where).
		WithLimit(limit).
		WithFields(fields...)
	if offset > 0 {
		q = q.WithOffset(offset)
	}
	if near != nil {
		q = q.WithNearVector(near)
	}
	res, err := q.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}
	return s.rows(res.Data, "Get"), nil
}

func (s *Store) getSorted(ctx context.Context, docID string, limit, offset int, fields ...graphql.Field) ([]map[string]interface{}, error) {
	q := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithWhere(docFilter(docID)).
		WithSort(graphql.Sort{Path: []string{propChunkIndex}, Order: graphql.Asc}).
		WithLimit(limit).
		WithFields(fields...)
	if offset > 0 {
		q = q.WithOffset(offset)
	}
	res, err := q.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}
	return s.rows(res.Data, "Get"), nil
}

func (s *Store) rows(data map[string]models.JSONObject, op string) []map[string]interface{} {
	root, ok := data[op].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := root[s.className].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func docFilter(docID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{propDocID}).
		WithOperator(filters.Equal).
		WithValueText(docID)
}

func stringProp(row map[string]interface{}, key string) string {
	v, _ := row[key].(string)
	return v
}

func intProp(row map[string]interface{}, key string) int {
	return int(floatValue(row[key]))
}

// floatValue accepts both JSON numbers and the string form some Weaviate
// versions use for _additional values.
func floatValue(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}

var _ vector.Store = (*Store)(nil)
