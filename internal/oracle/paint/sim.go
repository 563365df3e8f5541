package paint

var (
	dy = [4]int{-1, 0, 1, 0}
	dx = [4]int{0, 1, 0, -1}
)

// Apply replays ops on a copy of the board and returns the final grid.
func Apply(in *Input, ops []Op) [][]int {
	state := make([][]int, in.N)
	for y := range state {
		state[y] = make([]int, in.N)
		copy(state[y], in.Grid[y])
	}

	visited := make([][]bool, in.N)
	for y := range visited {
		visited[y] = make([]bool, in.N)
	}
	queue := make([][2]int, 0, in.N*in.N)

	for _, op := range ops {
		for y := range visited {
			clear(visited[y])
		}
		sy, sx := op.Y-1, op.X-1
		selected := state[sy][sx]

		queue = append(queue[:0], [2]int{sy, sx})
		for len(queue) > 0 {
			cy, cx := queue[0][0], queue[0][1]
			queue = queue[1:]
			if visited[cy][cx] {
				continue
			}
			visited[cy][cx] = true
			state[cy][cx] = op.C

			for d := 0; d < 4; d++ {
				ny, nx := cy+dy[d], cx+dx[d]
				if ny < 0 || nx < 0 || ny >= in.N || nx >= in.N {
					continue
				}
				if visited[ny][nx] || state[ny][nx] != selected {
					continue
				}
				queue = append(queue, [2]int{ny, nx})
			}
		}
	}
	return state
}

// Score is 100 per cell of the most common colour, minus one per operation.
func Score(in *Input, state [][]int, ops int) int64 {
	counts := make([]int64, in.K+1)
	for _, row := range state {
		for _, c := range row {
			counts[c]++
		}
	}
	var best int64
	for c := 1; c <= in.K; c++ {
		best = max(best, counts[c]*100)
	}
	return best - int64(ops)
}
