package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/config"
	registrymigrate "github.com/corval/docqa-service/internal/registry/migrate"
	registryvector "github.com/corval/docqa-service/internal/registry/vector"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload field names on every chunk point. The ACL fields carry a snapshot
// of the parent document's ACL sets and are patched in place by the
// access-grant propagator.
const (
	fieldDocID         = "docId"
	fieldOffset        = "offset"
	fieldContent       = "content"
	fieldRolesAllowed  = "rolesAllowed"
	fieldProjects      = "projects"
	fieldEmailsAllowed = "emailsAllowed"
)

// qdrantMigrator creates the chunks collection and its payload indexes.
type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant" }
func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	collections := pb.NewCollectionsClient(conn)
	collectionName := cfg.CollectionName()

	_, err = collections.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: collectionName})
	if err != nil {
		_, err = collections.Create(migrateCtx, &pb.CreateCollection{
			CollectionName: collectionName,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(cfg.OpenAIDimensions),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("qdrant migrate: create collection: %w", err)
		}
		log.Info("Created Qdrant collection", "name", collectionName)
	}

	// Keyword indexes make the ACL filter and the per-document scroll cheap.
	points := pb.NewPointsClient(conn)
	keyword := pb.FieldType_FieldTypeKeyword
	for _, field := range []string{fieldDocID, fieldRolesAllowed, fieldProjects, fieldEmailsAllowed} {
		_, err = points.CreateFieldIndex(migrateCtx, &pb.CreateFieldIndexCollection{
			CollectionName: collectionName,
			FieldName:      field,
			FieldType:      &keyword,
		})
		if err != nil {
			return fmt.Errorf("qdrant migrate: index %s: %w", field, err)
		}
	}
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &qdrantMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &QdrantStore{
		points:         pb.NewPointsClient(conn),
		conn:           conn,
		collectionName: cfg.CollectionName(),
	}, nil
}

type QdrantStore struct {
	points         pb.PointsClient
	conn           *grpc.ClientConn
	collectionName string
}

func (s *QdrantStore) IsEnabled() bool { return true }
func (s *QdrantStore) Name() string    { return "qdrant" }

func (s *QdrantStore) Search(ctx context.Context, embedding []float32, limit int, threshold float64, filter *registryvector.AccessFilter) ([]registryvector.SearchHit, error) {
	scoreThreshold := float32(threshold)
	req := &pb.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         embedding,
		Limit:          uint64(limit),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if filter != nil {
		req.Filter = accessFilter(filter)
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	var hits []registryvector.SearchHit
	for _, pt := range resp.GetResult() {
		hits = append(hits, registryvector.SearchHit{
			ChunkID: pt.GetId().GetUuid(),
			Score:   float64(pt.GetScore()),
			Payload: decodePayload(pt.GetPayload()),
		})
	}
	return hits, nil
}

// accessFilter renders the OR-of-dimensions policy as a qdrant should-filter:
// public (all three ACL fields empty), or any role match, or any project
// match, or an email match.
func accessFilter(f *registryvector.AccessFilter) *pb.Filter {
	should := []*pb.Condition{
		{
			ConditionOneOf: &pb.Condition_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						isEmpty(fieldRolesAllowed),
						isEmpty(fieldProjects),
						isEmpty(fieldEmailsAllowed),
					},
				},
			},
		},
	}
	if len(f.Roles) > 0 {
		should = append(should, matchAny(fieldRolesAllowed, f.Roles))
	}
	if len(f.Projects) > 0 {
		should = append(should, matchAny(fieldProjects, f.Projects))
	}
	if f.Email != "" {
		should = append(should, matchAny(fieldEmailsAllowed, []string{f.Email}))
	}
	return &pb.Filter{Should: should}
}

func (s *QdrantStore) Upsert(ctx context.Context, chunks []registryvector.ChunkUpsert) error {
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: c.ChunkID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				fieldDocID:         stringValue(c.Payload.DocID),
				fieldOffset:        {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.Payload.Offset)}},
				fieldContent:       stringValue(c.Payload.Content),
				fieldRolesAllowed:  stringListValue(c.Payload.RolesAllowed),
				fieldProjects:      stringListValue(c.Payload.Projects),
				fieldEmailsAllowed: stringListValue(c.Payload.EmailsAllowed),
			},
		}
	}
	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
		Wait:           &wait,
	})
	return err
}

func (s *QdrantStore) ScrollChunkIDs(ctx context.Context, docID string, pageSize int, cursor string) ([]string, string, error) {
	limit := uint32(pageSize)
	req := &pb.ScrollPoints{
		CollectionName: s.collectionName,
		Filter: &pb.Filter{
			Must: []*pb.Condition{matchAny(fieldDocID, []string{docID})},
		},
		Limit:       &limit,
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false}},
	}
	if cursor != "" {
		req.Offset = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: cursor}}
	}

	resp, err := s.points.Scroll(ctx, req)
	if err != nil {
		return nil, "", err
	}

	ids := make([]string, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		ids = append(ids, pt.GetId().GetUuid())
	}
	return ids, resp.GetNextPageOffset().GetUuid(), nil
}

func (s *QdrantStore) SetEmailsAllowed(ctx context.Context, chunkIDs []string, emails []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}
	wait := true
	_, err := s.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: s.collectionName,
		Payload: map[string]*pb.Value{
			fieldEmailsAllowed: stringListValue(emails),
		},
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
		Wait: &wait,
	})
	return err
}

func decodePayload(payload map[string]*pb.Value) registryvector.ChunkPayload {
	p := registryvector.ChunkPayload{
		DocID:         payload[fieldDocID].GetStringValue(),
		Offset:        int(payload[fieldOffset].GetIntegerValue()),
		Content:       payload[fieldContent].GetStringValue(),
		RolesAllowed:  stringList(payload[fieldRolesAllowed]),
		Projects:      stringList(payload[fieldProjects]),
		EmailsAllowed: stringList(payload[fieldEmailsAllowed]),
	}
	return p
}

func stringList(v *pb.Value) []string {
	values := v.GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, item := range values {
		out = append(out, item.GetStringValue())
	}
	return out
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func stringListValue(items []string) *pb.Value {
	values := make([]*pb.Value, len(items))
	for i, s := range items {
		values[i] = stringValue(s)
	}
	return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
}

func isEmpty(key string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_IsEmpty{
			IsEmpty: &pb.IsEmptyCondition{Key: key},
		},
	}
}

func matchAny(key string, values []string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keywords{
						Keywords: &pb.RepeatedStrings{Strings: values},
					},
				},
			},
		},
	}
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}
