package crypto

import (
	"encoding/binary"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const hashToPointTries = 256

// Secp256k1Blind implements BlindProvider over secp256k1. The value
// generator H is derived from G by hash-to-point, so nobody knows log_G(H).
type Secp256k1Blind struct {
	hasher CryptoProvider
	h      secp256k1.JacobianPoint
}

var _ BlindProvider = (*Secp256k1Blind)(nil)

func NewSecp256k1Blind(hasher CryptoProvider) (*Secp256k1Blind, error) {
	if hasher == nil {
		hasher = DevStdCryptoProvider{}
	}
	b := &Secp256k1Blind{hasher: hasher}

	var one secp256k1.ModNScalar
	one.SetInt(1)
	var g secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&one, &g)
	genc := encodePoint(&g)

	h, err := b.hashToPoint(genc[:])
	if err != nil {
		return nil, err
	}
	b.h = h
	return b, nil
}

// GeneratorH returns the compressed value generator.
func (b *Secp256k1Blind) GeneratorH() [33]byte {
	return encodePoint(&b.h)
}

func (b *Secp256k1Blind) Commit(value uint64, blind [32]byte) ([33]byte, error) {
	var r secp256k1.ModNScalar
	if r.SetByteSlice(blind[:]) {
		return [33]byte{}, primErr("commit", CodeBadScalar, "blind overflows group order")
	}
	var v secp256k1.ModNScalar
	var vb [8]byte
	binary.BigEndian.PutUint64(vb[:], value)
	v.SetByteSlice(vb[:])

	var rg secp256k1.JacobianPoint
	if !r.IsZero() {
		secp256k1.ScalarBaseMultNonConst(&r, &rg)
	}
	vh := mulPoint(&v, &b.h)
	sum := addPoints(&rg, &vh)
	return encodePoint(&sum), nil
}

func (b *Secp256k1Blind) VerifyTally(in, out [][33]byte) error {
	lhs, err := sumPoints(in)
	if err != nil {
		return primErr("verify_tally", CodeBadPoint, "input commitment: %v", err)
	}
	rhs, err := sumPoints(out)
	if err != nil {
		return primErr("verify_tally", CodeBadPoint, "output commitment: %v", err)
	}
	if encodePoint(&lhs) != encodePoint(&rhs) {
		return primErr("verify_tally", CodeMismatch, "commitment sums differ")
	}
	return nil
}

// KeyImage returns sk*Hp(pub).
func (b *Secp256k1Blind) KeyImage(pub [33]byte, sk [32]byte) ([33]byte, error) {
	var s secp256k1.ModNScalar
	if s.SetByteSlice(sk[:]) || s.IsZero() {
		return [33]byte{}, primErr("keyimage", CodeBadScalar, "invalid secret")
	}
	hp, err := b.hashToPoint(pub[:])
	if err != nil {
		return [33]byte{}, err
	}
	ki := mulPoint(&s, &hp)
	return encodePoint(&ki), nil
}

// hashToPoint maps data onto the curve by try-and-increment over
// SHA3(data || ctr) taken as an even-y x coordinate.
func (b *Secp256k1Blind) hashToPoint(data []byte) (secp256k1.JacobianPoint, error) {
	buf := make([]byte, len(data)+4)
	copy(buf, data)
	var cand [33]byte
	cand[0] = secp256k1.PubKeyFormatCompressedEven
	for ctr := uint32(0); ctr < hashToPointTries; ctr++ {
		binary.LittleEndian.PutUint32(buf[len(data):], ctr)
		h, err := b.hasher.SHA3_256(buf)
		if err != nil {
			return secp256k1.JacobianPoint{}, primErr("hash_to_point", CodeHashPoint, "%v", err)
		}
		copy(cand[1:], h[:])
		pk, err := secp256k1.ParsePubKey(cand[:])
		if err != nil {
			continue
		}
		var p secp256k1.JacobianPoint
		pk.AsJacobian(&p)
		return p, nil
	}
	return secp256k1.JacobianPoint{}, primErr("hash_to_point", CodeHashPoint, "no point after %d tries", hashToPointTries)
}

// PubKeyFromSecret returns the compressed sk*G.
func PubKeyFromSecret(sk [32]byte) ([33]byte, error) {
	var s secp256k1.ModNScalar
	if s.SetByteSlice(sk[:]) || s.IsZero() {
		return [33]byte{}, primErr("pubkey", CodeBadScalar, "invalid secret")
	}
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &p)
	return encodePoint(&p), nil
}

// IsValidPubKey reports whether b is a compressed point on the curve.
func IsValidPubKey(b []byte) bool {
	if len(b) != 33 || (b[0] != 0x02 && b[0] != 0x03) {
		return false
	}
	_, err := secp256k1.ParsePubKey(b)
	return err == nil
}

// RandomScalar returns a uniformly random non-zero scalar.
func RandomScalar() ([32]byte, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return [32]byte{}, err
	}
	return k.Key.Bytes(), nil
}

// BlindSum returns sum(pos) - sum(neg) mod n.
func BlindSum(pos, neg [][32]byte) ([32]byte, error) {
	var acc secp256k1.ModNScalar
	for _, b := range pos {
		var s secp256k1.ModNScalar
		if s.SetByteSlice(b[:]) {
			return [32]byte{}, primErr("blind_sum", CodeBadScalar, "blind overflows group order")
		}
		acc.Add(&s)
	}
	for _, b := range neg {
		var s secp256k1.ModNScalar
		if s.SetByteSlice(b[:]) {
			return [32]byte{}, primErr("blind_sum", CodeBadScalar, "blind overflows group order")
		}
		s.Negate()
		acc.Add(&s)
	}
	return acc.Bytes(), nil
}

func isInfinity(p *secp256k1.JacobianPoint) bool {
	x, y, z := p.X, p.Y, p.Z
	x.Normalize()
	y.Normalize()
	z.Normalize()
	return (x.IsZero() && y.IsZero()) || z.IsZero()
}

func encodePoint(p *secp256k1.JacobianPoint) [33]byte {
	var out [33]byte
	if isInfinity(p) {
		return out
	}
	a := *p
	a.ToAffine()
	copy(out[:], secp256k1.NewPublicKey(&a.X, &a.Y).SerializeCompressed())
	return out
}

var errEmptyPoint = errors.New("point encoding is empty")

func decodePoint(b []byte) (secp256k1.JacobianPoint, error) {
	var p secp256k1.JacobianPoint
	if len(b) != 33 {
		return p, errEmptyPoint
	}
	zero := true
	for _, x := range b {
		if x != 0 {
			zero = false
			break
		}
	}
	if zero {
		return p, nil
	}
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return p, err
	}
	pk.AsJacobian(&p)
	return p, nil
}

func negatePoint(p *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	if isInfinity(p) {
		return secp256k1.JacobianPoint{}
	}
	n := *p
	n.ToAffine()
	n.Y.Negate(1).Normalize()
	return n
}

func sumPoints(pts [][33]byte) (secp256k1.JacobianPoint, error) {
	var acc secp256k1.JacobianPoint
	for i := range pts {
		p, err := decodePoint(pts[i][:])
		if err != nil {
			return acc, err
		}
		acc = addPoints(&acc, &p)
	}
	return acc, nil
}

func mulPoint(k *secp256k1.ModNScalar, p *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	var r secp256k1.JacobianPoint
	if k.IsZero() || isInfinity(p) {
		return r
	}
	secp256k1.ScalarMultNonConst(k, p, &r)
	return r
}

func addPoints(a, b *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	var r secp256k1.JacobianPoint
	secp256k1.AddNonConst(a, b, &r)
	return r
}
