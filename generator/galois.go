package generator

import "fmt"

// field is GF(q) with precomputed tables. Elements are 0..q-1; for prime
// powers p^m an element is the base-p number of its polynomial
// coefficients, lowest degree first.
type field struct {
	q   int
	add [][]int
	mul [][]int
}

// irreducible holds a monic irreducible polynomial per supported prime
// power, coefficients lowest degree first
var irreducible = map[int]struct {
	p    int
	poly []int
}{
	4: {p: 2, poly: []int{1, 1, 1}},    // x^2 + x + 1
	8: {p: 2, poly: []int{1, 1, 0, 1}}, // x^3 + x + 1
	9: {p: 3, poly: []int{1, 0, 1}},    // x^2 + 1
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

func newField(q int) (*field, error) {
	f := &field{q: q, add: square(q), mul: square(q)}
	if isPrime(q) {
		for a := 0; a < q; a++ {
			for b := 0; b < q; b++ {
				f.add[a][b] = (a + b) % q
				f.mul[a][b] = (a * b) % q
			}
		}
		return f, nil
	}

	ir, ok := irreducible[q]
	if !ok {
		return nil, fmt.Errorf("no field construction for %d levels", q)
	}
	m := len(ir.poly) - 1
	for a := 0; a < q; a++ {
		for b := 0; b < q; b++ {
			da, db := digits(a, ir.p, m), digits(b, ir.p, m)

			sum := make([]int, m)
			for i := range sum {
				sum[i] = (da[i] + db[i]) % ir.p
			}
			f.add[a][b] = undigits(sum, ir.p)

			prod := make([]int, 2*m-1)
			for i := range da {
				for j := range db {
					prod[i+j] = (prod[i+j] + da[i]*db[j]) % ir.p
				}
			}
			// reduce modulo the monic polynomial from the top degree down
			for d := len(prod) - 1; d >= m; d-- {
				c := prod[d]
				if c == 0 {
					continue
				}
				for i := 0; i <= m; i++ {
					prod[d-m+i] = ((prod[d-m+i]-c*ir.poly[i])%ir.p + ir.p) % ir.p
				}
			}
			f.mul[a][b] = undigits(prod[:m], ir.p)
		}
	}
	return f, nil
}

func square(n int) [][]int {
	out := make([][]int, n)
	for i := range out {
		out[i] = make([]int, n)
	}
	return out
}

func digits(v, base, n int) []int {
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = v % base
		v /= base
	}
	return out
}

func undigits(d []int, base int) int {
	v := 0
	for i := len(d) - 1; i >= 0; i-- {
		v = v*base + d[i]
	}
	return v
}

// projectivePoints lists n points of PG(k-1, q): nonzero vectors whose
// first nonzero coordinate is 1. Unit vectors come first so the array's
// leading columns are the full factorial of its rows.
func projectivePoints(k, q, n int) [][]int {
	var points [][]int
	for i := 0; i < k && len(points) < n; i++ {
		v := make([]int, k)
		v[i] = 1
		points = append(points, v)
	}

	total := 1
	for i := 0; i < k; i++ {
		total *= q
	}
	for code := 1; code < total && len(points) < n; code++ {
		v := digits(code, q, k)
		lead := -1
		nonzero := 0
		for i, c := range v {
			if c != 0 {
				if lead < 0 {
					lead = i
				}
				nonzero++
			}
		}
		if v[lead] != 1 || nonzero == 1 {
			continue // not normalised, or a unit vector already listed
		}
		points = append(points, v)
	}
	return points
}

// raoHamming builds the strength-2 orthogonal array OA(q^k, n, q, 2):
// rows are every vector x of GF(q)^k, column j is the dot product of x
// with the j-th projective point
func raoHamming(f *field, k, n int) [][]int {
	points := projectivePoints(k, f.q, n)
	rows := 1
	for i := 0; i < k; i++ {
		rows *= f.q
	}

	out := make([][]int, rows)
	for r := range out {
		x := digits(r, f.q, k)
		row := make([]int, len(points))
		for j, pt := range points {
			acc := 0
			for i := range x {
				acc = f.add[acc][f.mul[x[i]][pt[i]]]
			}
			row[j] = acc
		}
		out[r] = row
	}
	return out
}
