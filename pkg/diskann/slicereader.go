package diskann

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sync"
)

// Dtype strings as they appear in the three chunked-array headers this
// reader opens, matching the exact encoding used by the original
// TensorStore-backed reader this type is modeled on.
const (
	DtypeFloat32 = "<f4"
	DtypeInt8    = "|i1"
	DtypeUint8   = "|u1"
	DtypeInt32   = "<i4"
	DtypeUint32  = "<u4"
)

func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case DtypeFloat32, DtypeInt32, DtypeUint32:
		return 4, nil
	case DtypeInt8, DtypeUint8:
		return 1, nil
	default:
		return 0, usageErrorf("unrecognized dtype %q", dtype)
	}
}

// arrayHeader is the fixed-shape header every chunked array file carries:
// an 8-byte dtype string, then two int64 shape dimensions (rows, cols).
// Row-major, uncompressed, one flat file per array, the local analogue of
// opening a 2-D zarr array at the given dtype and shape.
type arrayHeader struct {
	Dtype string
	Rows  int64
	Cols  int64
}

const arrayHeaderSize = 8 + 8 + 8 // dtype (8 bytes, space-padded) + rows + cols

func readArrayHeader(r io.Reader) (arrayHeader, error) {
	buf := make([]byte, arrayHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return arrayHeader{}, loadErrorf("reading array header: %w", err)
	}
	dtype := string(buf[0:8])
	for i, c := range dtype {
		if c == 0 || c == ' ' {
			dtype = dtype[:i]
			break
		}
	}
	rows := int64(binary.LittleEndian.Uint64(buf[8:16]))
	cols := int64(binary.LittleEndian.Uint64(buf[16:24]))
	return arrayHeader{Dtype: dtype, Rows: rows, Cols: cols}, nil
}

// chunkedArray is one opened array backend: either a local file (seekable,
// read at arbitrary row offsets) or a remote HTTP kvstore addressed by byte
// range, mirroring the two kvstore drivers ("file" and "http") the original
// reader supports via use_remote_addr.
type chunkedArray struct {
	header     arrayHeader
	rowBytes   int64
	dataOffset int64

	local *os.File

	httpClient  *http.Client
	httpBaseURL string
	httpPath    string
}

func openLocalArray(path string, wantDtype string, wantRows, wantCols int64) (*chunkedArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, loadErrorf("opening array %s: %w", path, err)
	}
	hdr, err := readArrayHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := validateArrayShape(hdr, wantDtype, wantRows, wantCols); err != nil {
		f.Close()
		return nil, err
	}
	elemSize, _ := dtypeSize(hdr.Dtype)
	return &chunkedArray{
		header:     hdr,
		rowBytes:   hdr.Cols * int64(elemSize),
		dataOffset: arrayHeaderSize,
		local:      f,
	}, nil
}

func openRemoteArray(client *http.Client, baseURL, path string, wantDtype string, wantRows, wantCols int64) (*chunkedArray, error) {
	hdr, body, err := httpReadRange(client, baseURL, path, 0, arrayHeaderSize)
	if err != nil {
		return nil, err
	}
	_ = hdr
	parsed, err := readArrayHeader(newByteReader(body))
	if err != nil {
		return nil, err
	}
	if err := validateArrayShape(parsed, wantDtype, wantRows, wantCols); err != nil {
		return nil, err
	}
	elemSize, _ := dtypeSize(parsed.Dtype)
	return &chunkedArray{
		header:      parsed,
		rowBytes:    parsed.Cols * int64(elemSize),
		dataOffset:  arrayHeaderSize,
		httpClient:  client,
		httpBaseURL: baseURL,
		httpPath:    path,
	}, nil
}

func validateArrayShape(hdr arrayHeader, wantDtype string, wantRows, wantCols int64) error {
	if hdr.Dtype != wantDtype {
		return loadErrorf("array dtype mismatch: got %q want %q", hdr.Dtype, wantDtype)
	}
	if hdr.Rows != wantRows || hdr.Cols != wantCols {
		return loadErrorf("array shape mismatch: got (%d,%d) want (%d,%d)", hdr.Rows, hdr.Cols, wantRows, wantCols)
	}
	return nil
}

// readRow fills dst (length hdr.Cols*elemSize bytes) with row idx's raw
// bytes, from whichever backend is open.
func (a *chunkedArray) readRow(idx int64, dst []byte) error {
	offset := a.dataOffset + idx*a.rowBytes
	if a.local != nil {
		n, err := a.local.ReadAt(dst, offset)
		if err != nil {
			return ioFatalErrorf("reading row %d: %w", idx, err)
		}
		if int64(n) != int64(len(dst)) {
			return ioFatalErrorf("short read on row %d: got %d want %d", idx, n, len(dst))
		}
		return nil
	}
	_, body, err := httpReadRange(a.httpClient, a.httpBaseURL, a.httpPath, offset, int64(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, body)
	return nil
}

func (a *chunkedArray) close() error {
	if a.local != nil {
		return a.local.Close()
	}
	return nil
}

func httpReadRange(client *http.Client, baseURL, path string, offset, length int64) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/"+path, nil)
	if err != nil {
		return 0, nil, ioFatalErrorf("building range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, &RetryableIOError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, ioFatalErrorf("range request returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &RetryableIOError{Err: err}
	}
	return resp.StatusCode, body, nil
}

type byteReader struct {
	b   []byte
	pos int
}

func newByteReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

// SlicePointRequest is one point's slice read, mirroring
// TensorsPointSliceRead: an id to fetch plus the three destination buffers,
// any of which may be nil to skip that array (matching skip_embedding /
// skip_neighbors).
type SlicePointRequest struct {
	ID              uint64
	EmbeddingBuf    []float32
	NumNbrsBuf      *uint32
	NeighborhoodBuf []uint32
}

// ArraySliceReader is the C4 chunked-array backend: three row-major arrays
// (embedding, num_nbrs, nbrhood) opened either from local files or from an
// HTTP kvstore, read by arbitrary row index in sync or async batches.
type ArraySliceReader struct {
	numPts       int64
	numDims      int64
	maxNbrsPerPt int64

	embedding *chunkedArray
	numNbrs   *chunkedArray
	nbrhood   *chunkedArray

	cachePoolLimit int64 // advisory cache budget; recorded only, ReadBatch does not consult it
	cacheBudget    *cacheBudget

	registeredThreads int32
}

// OpenArraySliceReader opens the three arrays named
// <prefix>_embedding.arr, <prefix>_num_nbrs.arr, <prefix>_nbrhood.arr. When
// remoteBaseURL is non-empty they are opened over HTTP range requests
// instead of local files, matching use_remote_addr in the original.
func OpenArraySliceReader(prefix string, numPts, numDims, maxNbrsPerPt int64, remoteBaseURL string, cachePoolBytes int64) (*ArraySliceReader, error) {
	open := func(suffix, dtype string, cols int64) (*chunkedArray, error) {
		if remoteBaseURL != "" {
			return openRemoteArray(http.DefaultClient, remoteBaseURL, prefix+suffix, dtype, numPts, cols)
		}
		return openLocalArray(prefix+suffix, dtype, numPts, cols)
	}

	embedding, err := open("_embedding.arr", DtypeFloat32, numDims)
	if err != nil {
		return nil, err
	}
	numNbrs, err := open("_num_nbrs.arr", DtypeUint32, 1)
	if err != nil {
		embedding.close()
		return nil, err
	}
	nbrhood, err := open("_nbrhood.arr", DtypeUint32, maxNbrsPerPt)
	if err != nil {
		embedding.close()
		numNbrs.close()
		return nil, err
	}

	return &ArraySliceReader{
		numPts:         numPts,
		numDims:        numDims,
		maxNbrsPerPt:   maxNbrsPerPt,
		embedding:      embedding,
		numNbrs:        numNbrs,
		nbrhood:        nbrhood,
		cachePoolLimit: cachePoolBytes,
		cacheBudget:    newCacheBudget(cachePoolBytes),
	}, nil
}

func (r *ArraySliceReader) RegisterThread() error   { r.registeredThreads++; return nil }
func (r *ArraySliceReader) DeregisterThread() error { r.registeredThreads--; return nil }

// ReadBatch fills every request's non-nil buffers, one request at a time
// when async is false, or fanned out across goroutines when async is true
// the same sync/async split as the original's read(). skipEmbedding and
// skipNeighbors drop those arrays from every request in the batch
// regardless of whether individual buffers are set, matching the original
// signature exactly.
func (r *ArraySliceReader) ReadBatch(reqs []SlicePointRequest, async, skipEmbedding, skipNeighbors bool) error {
	do := func(req SlicePointRequest) error {
		if req.ID >= uint64(r.numPts) {
			return usageErrorf("point id %d out of range (num_pts=%d)", req.ID, r.numPts)
		}
		if !skipEmbedding && req.EmbeddingBuf != nil {
			bytes := make([]byte, r.numDims*4)
			if err := r.embedding.readRow(int64(req.ID), bytes); err != nil {
				return err
			}
			for i := range req.EmbeddingBuf {
				req.EmbeddingBuf[i] = decodeFloat32LE(bytes[i*4 : i*4+4])
			}
		}
		if !skipNeighbors {
			if req.NumNbrsBuf != nil {
				bytes := make([]byte, 4)
				if err := r.numNbrs.readRow(int64(req.ID), bytes); err != nil {
					return err
				}
				*req.NumNbrsBuf = decodeUint32LE(bytes)
			}
			if req.NeighborhoodBuf != nil {
				bytes := make([]byte, r.maxNbrsPerPt*4)
				if err := r.nbrhood.readRow(int64(req.ID), bytes); err != nil {
					return err
				}
				for i := range req.NeighborhoodBuf {
					req.NeighborhoodBuf[i] = decodeUint32LE(bytes[i*4 : i*4+4])
				}
			}
		}
		return nil
	}

	if !async {
		for _, req := range reqs {
			if err := do(req); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		go func(i int, req SlicePointRequest) {
			defer wg.Done()
			errs[i] = do(req)
		}(i, req)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *ArraySliceReader) Close() error {
	if err := r.embedding.close(); err != nil {
		return err
	}
	if err := r.numNbrs.close(); err != nil {
		return err
	}
	return r.nbrhood.close()
}

func decodeFloat32LE(b []byte) float32 {
	bits := binary.LittleEndian.Uint32(b)
	return math.Float32frombits(bits)
}

func decodeUint32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// cacheBudget tracks bytes admitted against an advisory limit. The original
// TENSORSTORE_CACHE_POOL_SIZE constant (~5GB) is a hint the underlying
// store may ignore entirely. The reader creates one of these from its
// byte limit, but ReadBatch keeps no chunk cache and never calls TryAdmit,
// so the limit has no effect on reads or memory use.
type cacheBudget struct {
	mu       sync.Mutex
	limit    int64
	admitted int64
}

func newCacheBudget(limit int64) *cacheBudget {
	return &cacheBudget{limit: limit}
}

// TryAdmit reports whether n more bytes fit under the budget, and if so
// reserves them. limit <= 0 means unbounded.
func (c *cacheBudget) TryAdmit(n int64) bool {
	if c.limit <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.admitted+n > c.limit {
		return false
	}
	c.admitted += n
	return true
}

func (c *cacheBudget) Release(n int64) {
	if c.limit <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.admitted -= n
}
