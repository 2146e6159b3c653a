package p2pgossip

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the handshake body exchanged on the status sub-protocol:
// peers trade chain tip information before trusting each other's
// gossip (spec §6).
type Status struct {
	ChainID       uint64
	BlockHash     common.Hash
	BlockNumber   uint64
}

func (s *Status) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 8+common.HashLength+8)
	binary.LittleEndian.PutUint64(buf[0:8], s.ChainID)
	copy(buf[8:8+common.HashLength], s.BlockHash[:])
	binary.LittleEndian.PutUint64(buf[8+common.HashLength:], s.BlockNumber)
	return buf, nil
}

func (s *Status) UnmarshalSSZ(buf []byte) error {
	const want = 8 + common.HashLength + 8
	if len(buf) != want {
		return fmt.Errorf("p2pgossip: Status: want %d bytes, got %d", want, len(buf))
	}
	s.ChainID = binary.LittleEndian.Uint64(buf[0:8])
	copy(s.BlockHash[:], buf[8:8+common.HashLength])
	s.BlockNumber = binary.LittleEndian.Uint64(buf[8+common.HashLength:])
	return nil
}

// Goodbye carries a machine-readable disconnect reason code.
type Goodbye struct {
	Reason uint64
}

func (g *Goodbye) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, g.Reason)
	return buf, nil
}

func (g *Goodbye) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 8 {
		return fmt.Errorf("p2pgossip: Goodbye: want 8 bytes, got %d", len(buf))
	}
	g.Reason = binary.LittleEndian.Uint64(buf)
	return nil
}

// Ping carries a sequence number the responder echoes back incremented.
type Ping struct {
	SeqNumber uint64
}

func (p *Ping) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, p.SeqNumber)
	return buf, nil
}

func (p *Ping) UnmarshalSSZ(buf []byte) error {
	if len(buf) != 8 {
		return fmt.Errorf("p2pgossip: Ping: want 8 bytes, got %d", len(buf))
	}
	p.SeqNumber = binary.LittleEndian.Uint64(buf)
	return nil
}

// Metadata advertises the mempool IDs a peer is subscribed to.
type Metadata struct {
	SeqNumber  uint64
	MempoolIDs []common.Hash
}

func (m *Metadata) MarshalSSZ() ([]byte, error) {
	const fixedLen = 8 + offsetSize
	buf := make([]byte, fixedLen)
	binary.LittleEndian.PutUint64(buf[0:8], m.SeqNumber)
	binary.LittleEndian.PutUint32(buf[8:fixedLen], uint32(fixedLen))
	tail := make([]byte, 0, len(m.MempoolIDs)*common.HashLength)
	for _, id := range m.MempoolIDs {
		tail = append(tail, id[:]...)
	}
	return append(buf, tail...), nil
}

func (m *Metadata) UnmarshalSSZ(buf []byte) error {
	const fixedLen = 8 + offsetSize
	if len(buf) < fixedLen {
		return fmt.Errorf("p2pgossip: Metadata too short: %d bytes", len(buf))
	}
	m.SeqNumber = binary.LittleEndian.Uint64(buf[0:8])
	off := binary.LittleEndian.Uint32(buf[8:fixedLen])
	if int(off) != fixedLen {
		return fmt.Errorf("p2pgossip: Metadata: bad offset %d", off)
	}
	tail := buf[off:]
	if len(tail)%common.HashLength != 0 {
		return fmt.Errorf("p2pgossip: Metadata: tail not a multiple of hash length")
	}
	m.MempoolIDs = make([]common.Hash, len(tail)/common.HashLength)
	for i := range m.MempoolIDs {
		copy(m.MempoolIDs[i][:], tail[i*common.HashLength:(i+1)*common.HashLength])
	}
	return nil
}

// PooledUserOpHashesRequest asks a peer for the hashes it holds for
// one mempool, paginated by cursor.
type PooledUserOpHashesRequest struct {
	MempoolID common.Hash
	Cursor    uint64
}

func (r *PooledUserOpHashesRequest) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, common.HashLength+8)
	copy(buf[:common.HashLength], r.MempoolID[:])
	binary.LittleEndian.PutUint64(buf[common.HashLength:], r.Cursor)
	return buf, nil
}

func (r *PooledUserOpHashesRequest) UnmarshalSSZ(buf []byte) error {
	const want = common.HashLength + 8
	if len(buf) != want {
		return fmt.Errorf("p2pgossip: PooledUserOpHashesRequest: want %d bytes, got %d", want, len(buf))
	}
	copy(r.MempoolID[:], buf[:common.HashLength])
	r.Cursor = binary.LittleEndian.Uint64(buf[common.HashLength:])
	return nil
}

// PooledUserOpHashesResponse is the hash list answer to
// PooledUserOpHashesRequest, with a cursor for the next page (0 when done).
type PooledUserOpHashesResponse struct {
	Hashes     []common.Hash
	NextCursor uint64
}

func (r *PooledUserOpHashesResponse) MarshalSSZ() ([]byte, error) {
	const fixedLen = offsetSize + 8
	buf := make([]byte, fixedLen)
	binary.LittleEndian.PutUint32(buf[0:offsetSize], uint32(fixedLen))
	binary.LittleEndian.PutUint64(buf[offsetSize:fixedLen], r.NextCursor)
	tail := make([]byte, 0, len(r.Hashes)*common.HashLength)
	for _, h := range r.Hashes {
		tail = append(tail, h[:]...)
	}
	return append(buf, tail...), nil
}

func (r *PooledUserOpHashesResponse) UnmarshalSSZ(buf []byte) error {
	const fixedLen = offsetSize + 8
	if len(buf) < fixedLen {
		return fmt.Errorf("p2pgossip: PooledUserOpHashesResponse too short: %d bytes", len(buf))
	}
	off := binary.LittleEndian.Uint32(buf[0:offsetSize])
	if int(off) != fixedLen {
		return fmt.Errorf("p2pgossip: PooledUserOpHashesResponse: bad offset %d", off)
	}
	r.NextCursor = binary.LittleEndian.Uint64(buf[offsetSize:fixedLen])
	tail := buf[off:]
	if len(tail)%common.HashLength != 0 {
		return fmt.Errorf("p2pgossip: PooledUserOpHashesResponse: tail not a multiple of hash length")
	}
	r.Hashes = make([]common.Hash, len(tail)/common.HashLength)
	for i := range r.Hashes {
		copy(r.Hashes[i][:], tail[i*common.HashLength:(i+1)*common.HashLength])
	}
	return nil
}

// PooledUserOpsByHashRequest asks a peer for the full operations behind hashes.
type PooledUserOpsByHashRequest struct {
	Hashes []common.Hash
}

func (r *PooledUserOpsByHashRequest) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, len(r.Hashes)*common.HashLength)
	for _, h := range r.Hashes {
		buf = append(buf, h[:]...)
	}
	return buf, nil
}

func (r *PooledUserOpsByHashRequest) UnmarshalSSZ(buf []byte) error {
	if len(buf)%common.HashLength != 0 {
		return fmt.Errorf("p2pgossip: PooledUserOpsByHashRequest: not a multiple of hash length")
	}
	r.Hashes = make([]common.Hash, len(buf)/common.HashLength)
	for i := range r.Hashes {
		copy(r.Hashes[i][:], buf[i*common.HashLength:(i+1)*common.HashLength])
	}
	return nil
}

// PooledUserOpsByHashResponse answers PooledUserOpsByHashRequest with
// the matching VerifiedUserOperation bodies, in request order (missing
// hashes are simply omitted).
type PooledUserOpsByHashResponse struct {
	Ops []*VerifiedUserOperation
}

func (r *PooledUserOpsByHashResponse) MarshalSSZ() ([]byte, error) {
	offsetsLen := len(r.Ops) * offsetSize
	buf := make([]byte, offsetsLen)
	tail := make([]byte, 0, 256)
	for i, op := range r.Ops {
		encoded, err := op.MarshalSSZ()
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(buf[i*offsetSize:(i+1)*offsetSize], uint32(offsetsLen+len(tail)))
		tail = append(tail, encoded...)
	}
	return append(buf, tail...), nil
}

func (r *PooledUserOpsByHashResponse) UnmarshalSSZ(buf []byte) error {
	if len(buf) == 0 {
		r.Ops = nil
		return nil
	}
	firstOffset := binary.LittleEndian.Uint32(buf[:offsetSize])
	if int(firstOffset)%offsetSize != 0 || int(firstOffset) > len(buf) {
		return fmt.Errorf("p2pgossip: PooledUserOpsByHashResponse: bad first offset %d", firstOffset)
	}
	count := int(firstOffset) / offsetSize
	offsets := make([]uint32, count)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(buf[i*offsetSize : (i+1)*offsetSize])
	}
	bounds := append(offsets, uint32(len(buf)))
	r.Ops = make([]*VerifiedUserOperation, count)
	for i := 0; i < count; i++ {
		start, end := bounds[i], bounds[i+1]
		if start > end || int(end) > len(buf) {
			return fmt.Errorf("p2pgossip: PooledUserOpsByHashResponse: bad bounds at %d", i)
		}
		op := &VerifiedUserOperation{}
		if err := op.UnmarshalSSZ(buf[start:end]); err != nil {
			return err
		}
		r.Ops[i] = op
	}
	return nil
}
