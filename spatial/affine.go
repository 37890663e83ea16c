package spatial

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Affine3D is a 3D affine transform stored as the top three rows of a 4x4
// homogeneous matrix.  The zero value is not a valid transform; fields of a
// Convention left zero are treated as the identity.
type Affine3D [3][4]float64

// Identity returns the identity transform.
func Identity() Affine3D {
	return Affine3D{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
}

// Translation returns a transform that adds d.
func Translation(d [3]float64) Affine3D {
	a := Identity()
	for i := 0; i < 3; i++ {
		a[i][3] = d[i]
	}
	return a
}

// Scaling returns a transform that scales each axis by s.
func Scaling(s [3]float64) Affine3D {
	var a Affine3D
	for i := 0; i < 3; i++ {
		a[i][i] = s[i]
	}
	return a
}

// IsZero returns true for the zero value.
func (a Affine3D) IsZero() bool {
	return a == Affine3D{}
}

func (a Affine3D) orIdentity() Affine3D {
	if a.IsZero() {
		return Identity()
	}
	return a
}

func (a Affine3D) dense() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, a[r][c])
		}
	}
	m.Set(3, 3, 1)
	return m
}

func fromDense(m mat.Matrix) Affine3D {
	var a Affine3D
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			a[r][c] = m.At(r, c)
		}
	}
	return a
}

// Compose returns the transform that applies b and then a.
func (a Affine3D) Compose(b Affine3D) Affine3D {
	var m mat.Dense
	m.Mul(a.dense(), b.dense())
	return fromDense(&m)
}

// Then returns the transform that applies a and then b.
func (a Affine3D) Then(b Affine3D) Affine3D {
	return b.Compose(a)
}

// Inverse returns the inverse transform.
func (a Affine3D) Inverse() (Affine3D, error) {
	var m mat.Dense
	if err := m.Inverse(a.dense()); err != nil {
		return Affine3D{}, fmt.Errorf("transform is not invertible: %v", err)
	}
	return fromDense(&m), nil
}

// Apply transforms a point.
func (a Affine3D) Apply(p [3]float64) [3]float64 {
	var out [3]float64
	for r := 0; r < 3; r++ {
		out[r] = a[r][0]*p[0] + a[r][1]*p[1] + a[r][2]*p[2] + a[r][3]
	}
	return out
}

// ApproxEqual returns true if all elements differ by at most tol.
func (a Affine3D) ApproxEqual(b Affine3D, tol float64) bool {
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			if math.Abs(a[r][c]-b[r][c]) > tol {
				return false
			}
		}
	}
	return true
}

// RowPacked returns the 12 elements in row-major order.
func (a Affine3D) RowPacked() []float64 {
	v := make([]float64, 0, 12)
	for r := 0; r < 3; r++ {
		v = append(v, a[r][:]...)
	}
	return v
}

func (a Affine3D) String() string {
	parts := make([]string, 12)
	for i, v := range a.RowPacked() {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseAffine parses 12 comma or space separated numbers in row-major order.
func ParseAffine(s string) (Affine3D, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	if len(fields) != 12 {
		return Affine3D{}, fmt.Errorf("affine transform needs 12 values, got %d in %q", len(fields), s)
	}
	var a Affine3D
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Affine3D{}, fmt.Errorf("bad affine transform %q: %v", s, err)
		}
		a[i/4][i%4] = v
	}
	return a, nil
}

// MarshalJSON writes the 12 row-major elements.
func (a Affine3D) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.RowPacked())
}

// UnmarshalJSON reads 12 row-major elements.
func (a *Affine3D) UnmarshalJSON(b []byte) error {
	var v []float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if len(v) != 12 {
		return fmt.Errorf("affine transform needs 12 values, got %d", len(v))
	}
	for i, x := range v {
		a[i/4][i%4] = x
	}
	return nil
}

// UnmarshalText lets transforms be given as strings in TOML.
func (a *Affine3D) UnmarshalText(b []byte) error {
	parsed, err := ParseAffine(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText writes the form read by UnmarshalText.
func (a Affine3D) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
