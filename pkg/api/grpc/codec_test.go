package grpc

import "testing"

func TestGobCodec_RoundTrip(t *testing.T) {
	c := gobCodec{}

	req := &SearchRequest{Query: []float32{1, 2, 3}, K: 10, L: 64, BeamWidth: 4}

	data, err := c.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got SearchRequest
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if got.K != req.K || got.L != req.L || got.BeamWidth != req.BeamWidth {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, *req)
	}
	if len(got.Query) != len(req.Query) {
		t.Fatalf("Query length = %d, want %d", len(got.Query), len(req.Query))
	}
	for i := range req.Query {
		if got.Query[i] != req.Query[i] {
			t.Errorf("Query[%d] = %f, want %f", i, got.Query[i], req.Query[i])
		}
	}
}

func TestGobCodec_Name(t *testing.T) {
	if (gobCodec{}).Name() != "gob" {
		t.Errorf("Name() = %q, want gob", gobCodec{}.Name())
	}
}
