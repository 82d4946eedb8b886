package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Message types exchanged by the hand-rolled DiskANN service. These are
// plain Go structs encoded with the gob codec registered in codec.go,
// there is no .proto file and no generated marshal/unmarshal code.

type SearchRequest struct {
	Query          []float32
	K              int
	L              int
	BeamWidth      int
	IOLimit        int
	UseReorderData bool
}

type SearchResponse struct {
	IDs    []uint64
	Dists  []float32
	Hops   int
	Error  string
}

type RangeSearchRequest struct {
	Query         []float32
	Radius        float32
	LMin          int
	LMax          int
	BeamWidth     int
	MaxResultSize int
}

type RangeSearchResponse struct {
	IDs        []uint64
	Dists      []float32
	Widenings  int
	Error      string
}

type WarmCacheRequest struct {
	IDs []uint64
}

type WarmCacheResponse struct {
	Error string
}

type BFSCacheRequest struct {
	NumNodes int
}

type BFSCacheResponse struct {
	IDs   []uint64
	Error string
}

type StatsRequest struct{}

type StatsResponse struct {
	NumThreads int
	Dimension  int
	MaxDegree  int
}

// DiskANNServer is implemented by Server (server.go) and is the interface
// the hand-rolled ServiceDesc below dispatches to.
type DiskANNServer interface {
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	RangeSearch(context.Context, *RangeSearchRequest) (*RangeSearchResponse, error)
	WarmCache(context.Context, *WarmCacheRequest) (*WarmCacheResponse, error)
	BFSCache(context.Context, *BFSCacheRequest) (*BFSCacheResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
}

func searchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SearchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiskANNServer).Search(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/diskann.DiskANN/Search"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiskANNServer).Search(ctx, req.(*SearchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func rangeSearchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RangeSearchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiskANNServer).RangeSearch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/diskann.DiskANN/RangeSearch"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiskANNServer).RangeSearch(ctx, req.(*RangeSearchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func warmCacheHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(WarmCacheRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiskANNServer).WarmCache(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/diskann.DiskANN/WarmCache"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiskANNServer).WarmCache(ctx, req.(*WarmCacheRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func bfsCacheHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BFSCacheRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiskANNServer).BFSCache(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/diskann.DiskANN/BFSCache"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiskANNServer).BFSCache(ctx, req.(*BFSCacheRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiskANNServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/diskann.DiskANN/Stats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiskANNServer).Stats(ctx, req.(*StatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc is the hand-rolled grpc.ServiceDesc for the DiskANN engine
// API: five unary methods, no streaming, dispatched through DiskANNServer
// rather than protoc-generated stubs.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "diskann.DiskANN",
	HandlerType: (*DiskANNServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Search", Handler: searchHandler},
		{MethodName: "RangeSearch", Handler: rangeSearchHandler},
		{MethodName: "WarmCache", Handler: warmCacheHandler},
		{MethodName: "BFSCache", Handler: bfsCacheHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "diskann.proto",
}

// RegisterDiskANNServer registers an implementation of DiskANNServer with a
// grpc.Server, the way protoc-gen-go-grpc's generated code would.
func RegisterDiskANNServer(s *grpc.Server, srv DiskANNServer) {
	s.RegisterService(&serviceDesc, srv)
}

// diskANNClient is a thin hand-rolled client stub, the counterpart to
// RegisterDiskANNServer, using the gob codec instead of generated
// marshal/unmarshal code.
type diskANNClient struct {
	cc *grpc.ClientConn
}

// NewDiskANNClient wraps a ClientConn for calling the DiskANN service.
func NewDiskANNClient(cc *grpc.ClientConn) DiskANNServer {
	return &diskANNClient{cc: cc}
}

func (c *diskANNClient) Search(ctx context.Context, in *SearchRequest) (*SearchResponse, error) {
	out := new(SearchResponse)
	if err := c.cc.Invoke(ctx, "/diskann.DiskANN/Search", in, out, grpc.CallContentSubtype(gobCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *diskANNClient) RangeSearch(ctx context.Context, in *RangeSearchRequest) (*RangeSearchResponse, error) {
	out := new(RangeSearchResponse)
	if err := c.cc.Invoke(ctx, "/diskann.DiskANN/RangeSearch", in, out, grpc.CallContentSubtype(gobCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *diskANNClient) WarmCache(ctx context.Context, in *WarmCacheRequest) (*WarmCacheResponse, error) {
	out := new(WarmCacheResponse)
	if err := c.cc.Invoke(ctx, "/diskann.DiskANN/WarmCache", in, out, grpc.CallContentSubtype(gobCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *diskANNClient) BFSCache(ctx context.Context, in *BFSCacheRequest) (*BFSCacheResponse, error) {
	out := new(BFSCacheResponse)
	if err := c.cc.Invoke(ctx, "/diskann.DiskANN/BFSCache", in, out, grpc.CallContentSubtype(gobCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *diskANNClient) Stats(ctx context.Context, in *StatsRequest) (*StatsResponse, error) {
	out := new(StatsResponse)
	if err := c.cc.Invoke(ctx, "/diskann.DiskANN/Stats", in, out, grpc.CallContentSubtype(gobCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}
