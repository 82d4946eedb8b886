package diskann

import (
	"encoding/binary"
	"io"
	"math"
	"os"
)

// Flat on-disk index header constants. The header occupies exactly one
// sector: a 2-int32 shape pair (meta_nr, meta_nc) followed by meta_nr
// uint64 fields, zero-padded out to sectorLen.
const (
	metaNr = 9
	metaNc = 1

	metaNumPoints         = 0
	metaDataDim           = 1
	metaMedoid            = 2
	metaMaxNodeLen        = 3
	metaNodesPerSector    = 4
	metaFrozenNum         = 5
	metaFrozenLoc         = 6
	metaAppendReorderFlag = 7
	metaFileSize          = 8
)

// FlatIndexHeader is the parsed header of a flat sector-aligned index file,
// field-for-field what the original disk_index_to_tensors conversion tool
// reads out of metadata[0..8].
type FlatIndexHeader struct {
	NumPoints         uint64
	DataDim           uint64
	Medoid            uint64
	MaxNodeLen        uint64
	NodesPerSector    uint64
	FrozenNum         uint64
	FrozenLoc         uint64
	AppendReorderFlag uint64
	FileSize          uint64
}

// ReadFlatIndexHeader parses the header sector from r. It does not validate
// FileSize against the real file size; callers with an *os.File should
// call ValidateFileSize separately once they know the file's actual size.
func ReadFlatIndexHeader(r io.Reader) (FlatIndexHeader, error) {
	var shape [8]byte
	if _, err := io.ReadFull(r, shape[:]); err != nil {
		return FlatIndexHeader{}, loadErrorf("reading header shape: %w", err)
	}
	nr := int32(binary.LittleEndian.Uint32(shape[0:4]))
	nc := int32(binary.LittleEndian.Uint32(shape[4:8]))
	if nr != metaNr {
		return FlatIndexHeader{}, loadErrorf("disk index meta_nr = %d, want %d", nr, metaNr)
	}
	if nc != metaNc {
		return FlatIndexHeader{}, loadErrorf("disk index meta_nc = %d, want %d", nc, metaNc)
	}

	raw := make([]byte, metaNr*8)
	if _, err := io.ReadFull(r, raw); err != nil {
		return FlatIndexHeader{}, loadErrorf("reading header metadata: %w", err)
	}
	field := func(i int) uint64 {
		return binary.LittleEndian.Uint64(raw[i*8 : i*8+8])
	}

	h := FlatIndexHeader{
		NumPoints:         field(metaNumPoints),
		DataDim:           field(metaDataDim),
		Medoid:            field(metaMedoid),
		MaxNodeLen:        field(metaMaxNodeLen),
		NodesPerSector:    field(metaNodesPerSector),
		FrozenNum:         field(metaFrozenNum),
		FrozenLoc:         field(metaFrozenLoc),
		AppendReorderFlag: field(metaAppendReorderFlag),
		FileSize:          field(metaFileSize),
	}
	return h, nil
}

// ValidateFileSize rejects a header whose recorded file_size field
// disagrees with the actual size on disk, the same check the original
// conversion tool performs before trusting the rest of the header.
func (h FlatIndexHeader) ValidateFileSize(actual int64) error {
	if h.FileSize != uint64(actual) {
		return loadErrorf("header file_size=%d does not match actual size=%d", h.FileSize, actual)
	}
	return nil
}

// MaxNbrsPerPoint derives the per-node adjacency capacity from MaxNodeLen,
// the element size, and DataDim: max_node_len holds the embedding, one
// uint32 neighbor count, and up to max_nbrs_per_pt uint32 neighbor ids.
func (h FlatIndexHeader) MaxNbrsPerPoint(elemSize int) uint64 {
	return (h.MaxNodeLen - h.DataDim*uint64(elemSize) - 4) / 4
}

// FlatIndexLoader opens a flat sector-aligned index file and exposes the
// per-node record layout the header describes: nhood of node i lives in
// sector [1 + i/NodesPerSector] (sector 0 is the header), at byte offset
// [(i % NodesPerSector) * MaxNodeLen] within that sector.
type FlatIndexLoader struct {
	Header       FlatIndexHeader
	ElemType     ElementType
	MaxNbrsPerPt uint64

	reader *FileBlockReader
	file   *os.File
}

// OpenFlatIndex opens path, parses and validates its header, and returns a
// loader ready to resolve node records into (offset, length) sector reads.
func OpenFlatIndex(path string, elemType ElementType) (*FlatIndexLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, loadErrorf("opening flat index %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, loadErrorf("stat flat index %s: %w", path, err)
	}

	hdr, err := ReadFlatIndexHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := hdr.ValidateFileSize(info.Size()); err != nil {
		f.Close()
		return nil, err
	}
	if hdr.AppendReorderFlag != 0 {
		// Reorder data support is carried by the separate full-precision
		// rerank path (search.go), not by this loader's node records.
	}

	return &FlatIndexLoader{
		Header:       hdr,
		ElemType:     elemType,
		MaxNbrsPerPt: hdr.MaxNbrsPerPoint(elemType.Size()),
		reader:       NewFileBlockReader(f),
		file:         f,
	}, nil
}

// NodeSectorOffset returns the (byte offset, length) of the single sector
// containing node id's record. The caller is expected to batch ids that
// land in the same sector into one read when possible.
func (l *FlatIndexLoader) NodeSectorOffset(id uint64) (offset int64, length int) {
	sectorIdx := 1 + id/l.Header.NodesPerSector
	return int64(sectorIdx) * sectorLen, sectorLen
}

// NodeOffsetInSector returns the byte offset of node id's record within
// its sector, as returned by NodeSectorOffset.
func (l *FlatIndexLoader) NodeOffsetInSector(id uint64) int {
	return int(id%l.Header.NodesPerSector) * int(l.Header.MaxNodeLen)
}

// ParseNodeRecord decodes one node's record out of a sector buffer at the
// given in-sector offset: embedding, neighbor count, neighbor ids.
func (l *FlatIndexLoader) ParseNodeRecord(sector []byte, inSectorOffset int) (vector []float32, neighbors []uint32) {
	cursor := inSectorOffset
	elemSize := l.ElemType.Size()
	dim := int(l.Header.DataDim)

	vector = make([]float32, dim)
	for i := 0; i < dim; i++ {
		vector[i] = decodeElement(l.ElemType, sector[cursor+i*elemSize:cursor+(i+1)*elemSize])
	}
	cursor += dim * elemSize

	numNbrs := binary.LittleEndian.Uint32(sector[cursor : cursor+4])
	cursor += 4

	neighbors = make([]uint32, numNbrs)
	for i := range neighbors {
		neighbors[i] = binary.LittleEndian.Uint32(sector[cursor+i*4 : cursor+(i+1)*4])
	}
	return vector, neighbors
}

func decodeElement(t ElementType, b []byte) float32 {
	switch t {
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case Int8:
		return float32(int8(b[0]))
	case Uint8:
		return float32(b[0])
	default:
		return 0
	}
}

// FetchNode reads and parses a single node's record, going through the
// block reader for the sector containing it. This is the uncached,
// single-node path; the search engine's FETCH step batches many nodes'
// sector reads together via Reader() directly instead of calling this in
// a loop.
func (l *FlatIndexLoader) FetchNode(id uint64) (vector []float32, neighbors []uint32, err error) {
	offset, length := l.NodeSectorOffset(id)
	buf := alignedAlloc(length)
	if err := l.reader.SubmitBatch([]BlockRequest{{Offset: offset, Length: length, Buf: buf}}); err != nil {
		return nil, nil, err
	}
	vector, neighbors = l.ParseNodeRecord(buf, l.NodeOffsetInSector(id))
	return vector, neighbors, nil
}

// Reader exposes the underlying block reader for batched multi-node fetches.
func (l *FlatIndexLoader) Reader() *FileBlockReader { return l.reader }

func (l *FlatIndexLoader) Close() error {
	return l.reader.Close()
}
