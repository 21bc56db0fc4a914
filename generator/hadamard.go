package generator

// plackettBurmanRuns lists the two-level Plackett-Burman sizes available,
// smallest first
var plackettBurmanRuns = []int{12, 20, 24}

// plackettBurmanGenerators are the cyclic first rows of OA(n, n-1, 2, 2)
var plackettBurmanGenerators = map[int]string{
	12: "++-+++---+-",
	20: "++--++++-+-+----++-",
	24: "+++++-+-++--++--+-+----",
}

// plackettBurman builds the first cols columns of the n-run array: the
// n-1 cyclic shifts of the generator plus an all-minus row, with + as
// level 1 and - as level 0
func plackettBurman(n, cols int) [][]int {
	gen := plackettBurmanGenerators[n]
	m := len(gen)
	out := make([][]int, 0, n)
	for i := 0; i < m; i++ {
		row := make([]int, cols)
		for j := range row {
			if gen[(j-i+m)%m] == '+' {
				row[j] = 1
			}
		}
		out = append(out, row)
	}
	return append(out, make([]int, cols))
}
