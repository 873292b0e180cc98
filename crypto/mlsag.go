package crypto

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Matrix layout: m holds rows*cols compressed points, entry (row k, column i)
// at (k*cols+i)*33. The signature is pc || ss with ss[i*rows+k] at
// 32+(i*rows+k)*32. The first rows-1 rows are spend keys and carry key
// images; the last row is the commitment row built by PrepareMLSAG.

func (b *Secp256k1Blind) PrepareMLSAG(m []byte, cols, rows int, inCommits, outCommits [][33]byte) error {
	if cols < 1 || rows < 2 || len(m) != cols*rows*33 {
		return primErr("prepare_mlsag", CodeBadArgs, "matrix %d bytes for %dx%d", len(m), rows, cols)
	}
	if len(inCommits) != cols*(rows-1) {
		return primErr("prepare_mlsag", CodeBadArgs, "have %d input commitments, want %d", len(inCommits), cols*(rows-1))
	}
	sumOut, err := sumPoints(outCommits)
	if err != nil {
		return primErr("prepare_mlsag", CodeBadPoint, "output commitment: %v", err)
	}
	negOut := negatePoint(&sumOut)

	last := rows - 1
	for i := 0; i < cols; i++ {
		var acc secp256k1.JacobianPoint
		for k := 0; k < last; k++ {
			p, err := decodePoint(inCommits[k*cols+i][:])
			if err != nil {
				return primErr("prepare_mlsag", CodeBadPoint, "input commitment %d,%d: %v", k, i, err)
			}
			acc = addPoints(&acc, &p)
		}
		acc = addPoints(&acc, &negOut)
		enc := encodePoint(&acc)
		copy(m[(last*cols+i)*33:], enc[:])
	}
	return nil
}

// ringColumn holds one column of the decoded matrix.
type ringColumn struct {
	raw [][]byte
	pts []secp256k1.JacobianPoint
	hp  []secp256k1.JacobianPoint
}

func (b *Secp256k1Blind) decodeMatrix(op string, m []byte, cols, rows int) ([]ringColumn, error) {
	out := make([]ringColumn, cols)
	for i := 0; i < cols; i++ {
		col := ringColumn{
			raw: make([][]byte, rows),
			pts: make([]secp256k1.JacobianPoint, rows),
			hp:  make([]secp256k1.JacobianPoint, rows-1),
		}
		for k := 0; k < rows; k++ {
			raw := m[(k*cols+i)*33 : (k*cols+i+1)*33]
			p, err := decodePoint(raw)
			if err != nil {
				return nil, primErr(op, CodeBadPoint, "matrix %d,%d: %v", k, i, err)
			}
			col.raw[k] = raw
			col.pts[k] = p
			if k < rows-1 {
				hp, err := b.hashToPoint(raw)
				if err != nil {
					return nil, err
				}
				col.hp[k] = hp
			}
		}
		out[i] = col
	}
	return out, nil
}

// challenge hashes one column: preimage, then per row P || L (|| R for key
// rows) where L = ss*G + c*P and R = ss*Hp(P) + c*KI.
func (b *Secp256k1Blind) challenge(preimage [32]byte, col *ringColumn, ki []secp256k1.JacobianPoint, ss []secp256k1.ModNScalar, c *secp256k1.ModNScalar) (secp256k1.ModNScalar, error) {
	rows := len(col.pts)
	buf := make([]byte, 0, 32+rows*99)
	buf = append(buf, preimage[:]...)
	for k := 0; k < rows; k++ {
		var sg secp256k1.JacobianPoint
		if !ss[k].IsZero() {
			secp256k1.ScalarBaseMultNonConst(&ss[k], &sg)
		}
		cp := mulPoint(c, &col.pts[k])
		l := addPoints(&sg, &cp)
		le := encodePoint(&l)
		buf = append(buf, col.raw[k]...)
		buf = append(buf, le[:]...)
		if k < rows-1 {
			sh := mulPoint(&ss[k], &col.hp[k])
			ck := mulPoint(c, &ki[k])
			r := addPoints(&sh, &ck)
			re := encodePoint(&r)
			buf = append(buf, re[:]...)
		}
	}
	h, err := b.hasher.SHA3_256(buf)
	if err != nil {
		return secp256k1.ModNScalar{}, primErr("mlsag_challenge", CodeHashPoint, "%v", err)
	}
	var out secp256k1.ModNScalar
	out.SetByteSlice(h[:])
	return out, nil
}

func (b *Secp256k1Blind) VerifyMLSAG(preimage [32]byte, cols, rows int, m []byte, keyImages []byte, sig []byte) error {
	const op = "verify_mlsag"
	if cols < 1 || rows < 2 || len(m) != cols*rows*33 {
		return primErr(op, CodeBadArgs, "matrix %d bytes for %dx%d", len(m), rows, cols)
	}
	if len(keyImages) != (rows-1)*33 {
		return primErr(op, CodeBadArgs, "key images %d bytes", len(keyImages))
	}
	if len(sig) != (1+cols*rows)*32 {
		return primErr(op, CodeBadArgs, "signature %d bytes", len(sig))
	}

	ki := make([]secp256k1.JacobianPoint, rows-1)
	for k := range ki {
		p, err := decodePoint(keyImages[k*33 : (k+1)*33])
		if err != nil || isInfinity(&p) {
			return primErr(op, CodeBadPoint, "key image %d", k)
		}
		ki[k] = p
	}
	matrix, err := b.decodeMatrix(op, m, cols, rows)
	if err != nil {
		return err
	}

	var pc secp256k1.ModNScalar
	if pc.SetByteSlice(sig[:32]) {
		return primErr(op, CodeBadScalar, "pc overflows group order")
	}
	ss := make([]secp256k1.ModNScalar, cols*rows)
	for j := range ss {
		if ss[j].SetByteSlice(sig[32+j*32 : 64+j*32]) {
			return primErr(op, CodeBadScalar, "ss[%d] overflows group order", j)
		}
	}

	c := pc
	for i := 0; i < cols; i++ {
		c, err = b.challenge(preimage, &matrix[i], ki, ss[i*rows:(i+1)*rows], &c)
		if err != nil {
			return err
		}
	}
	if !c.Equals(&pc) {
		return primErr(op, CodeMismatch, "ring does not close")
	}
	return nil
}

// GenerateMLSAG signs preimage over a prepared matrix. sks holds one secret
// per row for column realIdx; the last is the commitment-row blind. It returns
// the key images and pc || ss.
func (b *Secp256k1Blind) GenerateMLSAG(preimage [32]byte, cols, rows, realIdx int, m []byte, sks [][32]byte) ([]byte, []byte, error) {
	const op = "generate_mlsag"
	if cols < 1 || rows < 2 || len(m) != cols*rows*33 || realIdx < 0 || realIdx >= cols || len(sks) != rows {
		return nil, nil, primErr(op, CodeBadArgs, "bad dimensions")
	}
	matrix, err := b.decodeMatrix(op, m, cols, rows)
	if err != nil {
		return nil, nil, err
	}

	sk := make([]secp256k1.ModNScalar, rows)
	for k := range sks {
		if sk[k].SetByteSlice(sks[k][:]) {
			return nil, nil, primErr(op, CodeBadScalar, "secret %d overflows group order", k)
		}
	}

	ki := make([]secp256k1.JacobianPoint, rows-1)
	kiBytes := make([]byte, 0, (rows-1)*33)
	for k := range ki {
		ki[k] = mulPoint(&sk[k], &matrix[realIdx].hp[k])
		enc := encodePoint(&ki[k])
		kiBytes = append(kiBytes, enc[:]...)
	}

	ss := make([]secp256k1.ModNScalar, cols*rows)
	alpha := make([]secp256k1.ModNScalar, rows)
	for k := range alpha {
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, err
		}
		alpha[k] = priv.Key
	}

	var zero, pc secp256k1.ModNScalar
	c, err := b.challenge(preimage, &matrix[realIdx], ki, alpha, &zero)
	if err != nil {
		return nil, nil, err
	}
	i := (realIdx + 1) % cols
	if i == 0 {
		pc = c
	}
	for i != realIdx {
		for k := 0; k < rows; k++ {
			priv, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return nil, nil, err
			}
			ss[i*rows+k] = priv.Key
		}
		c, err = b.challenge(preimage, &matrix[i], ki, ss[i*rows:(i+1)*rows], &c)
		if err != nil {
			return nil, nil, err
		}
		i = (i + 1) % cols
		if i == 0 {
			pc = c
		}
	}

	for k := 0; k < rows; k++ {
		var t secp256k1.ModNScalar
		t.Mul2(&c, &sk[k]).Negate().Add(&alpha[k])
		ss[realIdx*rows+k] = t
	}

	sig := make([]byte, 0, (1+cols*rows)*32)
	pcb := pc.Bytes()
	sig = append(sig, pcb[:]...)
	for j := range ss {
		sb := ss[j].Bytes()
		sig = append(sig, sb[:]...)
	}
	return kiBytes, sig, nil
}
