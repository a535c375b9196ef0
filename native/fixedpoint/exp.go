package fixedpoint

import (
	"errors"
	"math/big"
)

var (
	// ErrExpOverflow is returned when exp(x) does not fit a signed 256-bit WAD.
	ErrExpOverflow = errors.New("fixedpoint: exp overflow")
	// ErrLnUndefined is returned for non-positive logarithm arguments.
	ErrLnUndefined = errors.New("fixedpoint: ln undefined")
)

func mustInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixedpoint: bad constant " + s)
	}
	return v
}

var (
	expLowerBound = mustInt("-42139678854452767551")
	expUpperBound = mustInt("135305999368893231589")
	fiveTo18      = new(big.Int).Exp(big.NewInt(5), big.NewInt(18), nil)
	ln2Q96        = mustInt("54916777467707473351141471128")
	half96        = new(big.Int).Lsh(big.NewInt(1), 95)

	expP = [...]*big.Int{
		mustInt("1346386616545796478920950773328"),
		mustInt("57155421227552351082224309758442"),
		mustInt("94201549194550492254356042504812"),
		mustInt("28719021644029726153956944680412240"),
		new(big.Int).Lsh(mustInt("4385272521454847904659076985693276"), 96),
	}
	expQ = [...]*big.Int{
		mustInt("2855989394907223263936484059900"),
		mustInt("50020603652535783019961831881945"),
		mustInt("533845033583426703283633433725380"),
		mustInt("3604857256930695427073651918091429"),
		mustInt("14423608567350463180887372962807573"),
		mustInt("26449188498355588339934803723976023"),
	}
	expScale = mustInt("3822833074963236453042738258902158003155416615667")

	lnP = [...]*big.Int{
		mustInt("3273285459638523848632254066296"),
		mustInt("24828157081833163892658089445524"),
		mustInt("43456485725739037958740375743393"),
		mustInt("11111509109440967052023855526967"),
		mustInt("45023709667254063763336534515857"),
		mustInt("14706773417378608786704636184526"),
		new(big.Int).Lsh(mustInt("795164235651350426258249787498"), 96),
	}
	lnQ = [...]*big.Int{
		mustInt("5573035233440673466300451813936"),
		mustInt("71694874799317883764090561454958"),
		mustInt("283447036172924575727196451306956"),
		mustInt("401686690394027663651624208769553"),
		mustInt("204048457590392012362485061816622"),
		mustInt("31853899698501571402653359427138"),
		mustInt("909429971244387300277376558375"),
	}
	lnScale  = mustInt("1677202110996718588342820967067443963516166")
	lnLn2    = mustInt("16597577552685614221487285958193947469193820559219878177908093499208371")
	lnOffset = mustInt("600920179829731861736702779321621459595472258049074101567377883020018308")
)

// mulShift96 returns (a*b) >> 96 with arithmetic shift semantics.
func mulShift96(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Rsh(r, 96)
}

// ExpWad returns e^x for a signed WAD x, itself as a WAD. Results below
// 0.5 wei round to zero.
func ExpWad(x *big.Int) (*big.Int, error) {
	if x.Cmp(expLowerBound) <= 0 {
		return new(big.Int), nil
	}
	if x.Cmp(expUpperBound) >= 0 {
		return nil, ErrExpOverflow
	}

	// Convert to a 2^96 basis: x * 2^78 / 5^18.
	v := new(big.Int).Lsh(x, 78)
	v.Quo(v, fiveTo18)

	// Factor out powers of two: k = round(v / ln2).
	k := new(big.Int).Lsh(v, 96)
	k.Quo(k, ln2Q96)
	k.Add(k, half96)
	k.Rsh(k, 96)
	v.Sub(v, new(big.Int).Mul(k, ln2Q96))

	y := new(big.Int).Add(v, expP[0])
	y = mulShift96(y, v)
	y.Add(y, expP[1])
	p := new(big.Int).Add(y, v)
	p.Sub(p, expP[2])
	p = mulShift96(p, y)
	p.Add(p, expP[3])
	p.Mul(p, v)
	p.Add(p, expP[4])

	q := new(big.Int).Sub(v, expQ[0])
	q = mulShift96(q, v)
	q.Add(q, expQ[1])
	q = mulShift96(q, v)
	q.Sub(q, expQ[2])
	q = mulShift96(q, v)
	q.Add(q, expQ[3])
	q = mulShift96(q, v)
	q.Sub(q, expQ[4])
	q = mulShift96(q, v)
	q.Add(q, expQ[5])

	r := new(big.Int).Quo(p, q)
	r.Mul(r, expScale)
	return r.Rsh(r, uint(195-k.Int64())), nil
}

// LnWad returns ln(x) for a positive WAD x as a signed WAD.
func LnWad(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, ErrLnUndefined
	}

	// Reduce to (1, 2) * 2^96; ln(2^k * v) = k*ln2 + ln(v).
	k := int64(x.BitLen()-1) - 96
	v := new(big.Int)
	if k >= 0 {
		v.Rsh(x, uint(k))
	} else {
		v.Lsh(x, uint(-k))
	}

	p := new(big.Int).Add(v, lnP[0])
	p = mulShift96(p, v)
	p.Add(p, lnP[1])
	p = mulShift96(p, v)
	p.Add(p, lnP[2])
	p = mulShift96(p, v)
	p.Sub(p, lnP[3])
	p = mulShift96(p, v)
	p.Sub(p, lnP[4])
	p = mulShift96(p, v)
	p.Sub(p, lnP[5])
	p.Mul(p, v)
	p.Sub(p, lnP[6])

	q := new(big.Int).Add(v, lnQ[0])
	for _, c := range lnQ[1:] {
		q = mulShift96(q, v)
		q.Add(q, c)
	}

	r := new(big.Int).Quo(p, q)
	r.Mul(r, lnScale)
	r.Add(r, new(big.Int).Mul(lnLn2, big.NewInt(k)))
	r.Add(r, lnOffset)
	return r.Rsh(r, 174), nil
}
