package domain

// Relax upsamples the coarse box estimates to full grid resolution and runs a
// fixed number of Jacobi-style smoothing passes. Each pass blends the anchored
// local estimate (where the box fit was reliable) with the average of the four
// immediate neighbors from the previous pass:
//
//	next = (conf*local + s*avg(prev neighbors)) / (conf + s)
//
// where conf is 1 for cells of reliable boxes, 0 otherwise, and s is the
// smoothness weight. Every pass reads the previous buffer and writes a fresh
// one, then swaps; cells are never updated in place within a pass, so results
// are bit-identical regardless of how many workers run the pass.
func (bm BoxMotion) Relax(iterations int, smoothWeight float64) VelocityField {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if smoothWeight <= 0 {
		smoothWeight = DefaultSmoothWeight
	}

	rows, cols := bm.Rows, bm.Cols
	seedU, seedV := bm.seedBoxes()

	// Broadcast box values across their cells. conf anchors only cells whose
	// box produced a trustworthy fit.
	localU := make([]float64, rows*cols)
	localV := make([]float64, rows*cols)
	conf := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		br := r / bm.BoxSize
		for c := 0; c < cols; c++ {
			i := r*cols + c
			b := bm.boxIndex(br, c/bm.BoxSize)
			localU[i] = seedU[b]
			localV[i] = seedV[b]
			if bm.Reliable[b] {
				conf[i] = 1
			}
		}
	}

	prevU := make([]float64, rows*cols)
	prevV := make([]float64, rows*cols)
	nextU := make([]float64, rows*cols)
	nextV := make([]float64, rows*cols)
	copy(prevU, localU)
	copy(prevV, localV)

	for it := 0; it < iterations; it++ {
		parallelRows(rows, func(r int) {
			for c := 0; c < cols; c++ {
				i := r*cols + c
				var sumU, sumV float64
				n := 0
				if r > 0 {
					sumU += prevU[i-cols]
					sumV += prevV[i-cols]
					n++
				}
				if r < rows-1 {
					sumU += prevU[i+cols]
					sumV += prevV[i+cols]
					n++
				}
				if c > 0 {
					sumU += prevU[i-1]
					sumV += prevV[i-1]
					n++
				}
				if c < cols-1 {
					sumU += prevU[i+1]
					sumV += prevV[i+1]
					n++
				}
				if n == 0 {
					// Single-cell grid: nothing to smooth against.
					nextU[i] = prevU[i]
					nextV[i] = prevV[i]
					continue
				}
				avgU := sumU / float64(n)
				avgV := sumV / float64(n)
				w := conf[i] + smoothWeight
				nextU[i] = (conf[i]*localU[i] + smoothWeight*avgU) / w
				nextV[i] = (conf[i]*localV[i] + smoothWeight*avgV) / w
			}
		})
		prevU, nextU = nextU, prevU
		prevV, nextV = nextV, prevV
	}

	return VelocityField{Rows: rows, Cols: cols, U: prevU, V: prevV}
}

// seedBoxes returns per-box starting values with unreliable boxes filled from
// the mean of their reliable 8-neighborhood, repeated until every box is
// seeded. Grids with no reliable box anywhere seed to zero motion.
func (bm BoxMotion) seedBoxes() (u, v []float64) {
	n := bm.BoxRows * bm.BoxCols
	u = make([]float64, n)
	v = make([]float64, n)
	seeded := make([]bool, n)
	for i := 0; i < n; i++ {
		if bm.Reliable[i] {
			u[i] = bm.U[i]
			v[i] = bm.V[i]
			seeded[i] = true
		}
	}

	for {
		fillU := make([]float64, n)
		fillV := make([]float64, n)
		filled := make([]bool, n)
		progress := false
		for br := 0; br < bm.BoxRows; br++ {
			for bc := 0; bc < bm.BoxCols; bc++ {
				i := bm.boxIndex(br, bc)
				if seeded[i] {
					continue
				}
				var sumU, sumV float64
				count := 0
				for dr := -1; dr <= 1; dr++ {
					for dc := -1; dc <= 1; dc++ {
						nr, nc := br+dr, bc+dc
						if (dr == 0 && dc == 0) || nr < 0 || nr >= bm.BoxRows || nc < 0 || nc >= bm.BoxCols {
							continue
						}
						j := bm.boxIndex(nr, nc)
						if seeded[j] {
							sumU += u[j]
							sumV += v[j]
							count++
						}
					}
				}
				if count > 0 {
					fillU[i] = sumU / float64(count)
					fillV[i] = sumV / float64(count)
					filled[i] = true
					progress = true
				}
			}
		}
		if !progress {
			// Either everything is seeded or no reliable box exists at all;
			// unseeded boxes stay at zero motion.
			break
		}
		for i := 0; i < n; i++ {
			if filled[i] {
				u[i] = fillU[i]
				v[i] = fillV[i]
				seeded[i] = true
			}
		}
	}
	return u, v
}
