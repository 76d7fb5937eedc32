package qdrant

import (
	"context"
	"slices"
	"testing"

	"github.com/jllopis/semkernel/pkg/memory"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

type fakePoints struct {
	pb.PointsClient
	upserted []*pb.PointStruct
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserted = append(f.upserted, in.GetPoints()...)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	var out []*pb.ScoredPoint
	for _, p := range f.upserted {
		out = append(out, &pb.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: 0.9})
	}
	return &pb.SearchResponse{Result: out}, nil
}

func (f *fakePoints) Get(_ context.Context, in *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	var out []*pb.RetrievedPoint
	for _, want := range in.GetIds() {
		for _, p := range f.upserted {
			if p.GetId().GetUuid() == want.GetUuid() {
				out = append(out, &pb.RetrievedPoint{Id: p.GetId(), Payload: p.GetPayload()})
			}
		}
	}
	return &pb.GetResponse{Result: out}, nil
}

func (f *fakePoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	for _, id := range in.GetPoints().GetPoints().GetIds() {
		f.upserted = slices.DeleteFunc(f.upserted, func(p *pb.PointStruct) bool {
			return p.GetId().GetUuid() == id.GetUuid()
		})
	}
	return &pb.PointsOperationResponse{}, nil
}

type fakeCollections struct {
	pb.CollectionsClient
	names []string
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.names = append(f.names, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	resp := &pb.ListCollectionsResponse{}
	for _, n := range f.names {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func TestPointIDDeterministic(t *testing.T) {
	a := pointID("info1").GetUuid()
	b := pointID("info1").GetUuid()
	if a == "" || a != b {
		t.Fatalf("expected stable uuid, got %q and %q", a, b)
	}
	u := "9b2f1c7e-5b7a-4c1e-8d55-3f4f6a0b2c11"
	if pointID(u).GetUuid() != u {
		t.Errorf("uuid ids must pass through unchanged")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	in := map[string]interface{}{"text": "hi", "n": int64(3), "f": 0.5, "b": true}
	pbPayload := map[string]*pb.Value{}
	for k, v := range in {
		pbPayload[k] = toValue(v)
	}
	out := fromPayload(pbPayload)
	for k, v := range in {
		if out[k] != v {
			t.Errorf("key %s: expected %v, got %v", k, v, out[k])
		}
	}
}

func TestStoreThroughVectorMemory(t *testing.T) {
	ctx := context.Background()
	points := &fakePoints{}
	cols := &fakeCollections{}
	mem := memory.NewVectorMemory(NewWithClients(points, cols, nil), constEmbedder{})

	if err := mem.SaveInformation(ctx, "facts", "Paris is the capital", "info1"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if len(cols.names) != 1 || cols.names[0] != "facts" {
		t.Fatalf("expected collection created, got %v", cols.names)
	}

	results, err := mem.Search(ctx, "facts", "capital", 1, 0.5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "info1" || results[0].Text != "Paris is the capital" {
		t.Fatalf("unexpected results %+v", results)
	}

	got, err := mem.Get(ctx, "facts", "info1")
	if err != nil || got == nil || got.ID != "info1" {
		t.Fatalf("unexpected get %+v, %v", got, err)
	}

	if err := mem.SaveInformation(ctx, "facts", "again", "info2"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if len(cols.names) != 1 {
		t.Errorf("collection must be created once, got %v", cols.names)
	}

	if err := mem.Remove(ctx, "facts", "info1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(points.upserted) != 1 || points.upserted[0].GetId().GetUuid() != pointID("info2").GetUuid() {
		t.Fatalf("expected only info2 to remain, got %v", points.upserted)
	}
}
