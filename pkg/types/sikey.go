package types

import "fmt"

// SIKey is the spatial index key of one sub-shape. The object id lives in the
// upper 32 bits and the sub-shape position in the lower 32 bits.
type SIKey uint64

func NewSIKey(id ObjectID, pos int) SIKey {
	return SIKey(uint64(uint32(id))<<32 | uint64(uint32(pos)))
}

func (k SIKey) ID() ObjectID { return ObjectID(int32(uint32(k >> 32))) }
func (k SIKey) Pos() int     { return int(int32(uint32(k))) }

func (k SIKey) String() string {
	return fmt.Sprintf("%d:%d", k.ID(), k.Pos())
}
