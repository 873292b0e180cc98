package rcttest

import "github.com/ghost-coin/ghost-core-sub001/consensus"

// MemView is an in-memory consensus.AnonView.
type MemView struct {
	Outputs   map[int64]consensus.AnonOutput
	KeyImages map[consensus.KeyImage]consensus.KeyImageInfo
	last      int64
}

func NewMemView() *MemView {
	return &MemView{
		Outputs:   make(map[int64]consensus.AnonOutput),
		KeyImages: make(map[consensus.KeyImage]consensus.KeyImageInfo),
	}
}

func (v *MemView) ReadRCTOutput(pos int64) (consensus.AnonOutput, bool, error) {
	ao, ok := v.Outputs[pos]
	return ao, ok, nil
}

func (v *MemView) ReadRCTKeyImage(ki consensus.KeyImage) (consensus.KeyImageInfo, bool, error) {
	info, ok := v.KeyImages[ki]
	return info, ok, nil
}

// Add indexes o at the next position and returns the ring member for it.
func (v *MemView) Add(o *Owned, height int32) Member {
	v.last++
	ao := consensus.AnonOutput{PubKey: o.PubKey, Commitment: o.Commitment, BlockHeight: height}
	ao.Outpoint.Vout = uint32(v.last)
	v.Outputs[v.last] = ao
	return Member{Pos: v.last, Out: ao, Owner: o}
}

// Decoy returns m without its secrets.
func Decoy(m Member) Member {
	m.Owner = nil
	return m
}
