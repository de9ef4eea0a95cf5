package media

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Rational is a fraction such as a time base or an aspect ratio.
type Rational struct {
	Num, Den int
}

// NewRational returns num/den.
func NewRational(num, den int) Rational { return Rational{Num: num, Den: den} }

func (r Rational) String() string { return strconv.Itoa(r.Num) + "/" + strconv.Itoa(r.Den) }

// Float64 returns r as a float, or 0 when the denominator is zero.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert returns den/num.
func (r Rational) Invert() Rational { return Rational{Num: r.Den, Den: r.Num} }

// IsZero reports whether the rational is unset.
func (r Rational) IsZero() bool { return r.Num == 0 || r.Den == 0 }

// Reduce returns r in lowest terms with a positive denominator.
func (r Rational) Reduce() Rational {
	if r.Den == 0 {
		return r
	}
	g := gcd(abs(r.Num), abs(r.Den))
	if g == 0 {
		return r
	}
	r.Num /= g
	r.Den /= g
	if r.Den < 0 {
		r.Num, r.Den = -r.Num, -r.Den
	}
	return r
}

// ParseRational parses "a/b", "a:b" or a bare integer.
func ParseRational(s string) (Rational, error) {
	var r Rational
	if _, err := fmt.Sscanf(s, "%d/%d", &r.Num, &r.Den); err == nil {
		return r, nil
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &r.Num, &r.Den); err == nil {
		return r, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Rational{}, fmt.Errorf("invalid rational %q", s)
	}
	return Rational{Num: n, Den: 1}, nil
}

// NoPTS marks an absent timestamp (AV_NOPTS_VALUE).
const NoPTS int64 = math.MinInt64

// Rescale converts a from time base bq to time base cq, rounding to the
// nearest value with ties away from zero.
func Rescale(a int64, bq, cq Rational) int64 {
	if a == NoPTS {
		return NoPTS
	}
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(int64(bq.Num)*int64(cq.Den)))
	den := big.NewInt(int64(bq.Den) * int64(cq.Num))
	if den.Sign() == 0 {
		return NoPTS
	}
	if den.Sign() < 0 {
		num.Neg(num)
		den.Neg(den)
	}
	half := new(big.Int).Rsh(den, 1)
	if num.Sign() >= 0 {
		num.Add(num, half)
	} else {
		num.Sub(num, half)
	}
	return num.Quo(num, den).Int64()
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func itoa(v int) string { return strconv.Itoa(v) }
