// Package renju decides whether a candidate stone is legal and whether it wins.
//
// The rule set is the simplified exact-five variant: a line longer than five
// (an overline) is forbidden for both colors, and exactly five wins. Renju's
// color-asymmetric double-three and double-four prohibitions are not modelled.
package renju

import (
	"fmt"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
	"github.com/rocketscienceinc/renju-backend/internal/entity"
)

// WinLength is the exact run that wins; anything longer is an overline.
const WinLength = 5

// Directions are the four line axes: horizontal, vertical and both diagonals.
var Directions = [4][2]int{
	{1, 0},
	{0, 1},
	{1, 1},
	{1, -1},
}

// Verdict is the outcome of evaluating one candidate move.
type Verdict struct {
	Runs   [4]int
	Win    bool
	Reason entity.Reason
}

// Evaluate checks a stone of color at (x, y) against the board without
// placing it. Overline in any direction wins over a five in another one.
func Evaluate(board *entity.Board, x, y int, color entity.Cell) (Verdict, error) {
	if err := validateMove(board, x, y, color); err != nil {
		return Verdict{}, err
	}

	verdict := Verdict{
		Runs:   RunLengths(board, x, y, color),
		Reason: entity.ReasonOngoing,
	}

	for _, run := range verdict.Runs {
		if run > WinLength {
			verdict.Reason = entity.ReasonOverline
			return verdict, fmt.Errorf("%w: run of %d through (%d,%d)", apperror.ErrOverlineRejected, run, x, y)
		}
	}

	for _, run := range verdict.Runs {
		if run == WinLength {
			verdict.Win = true
			verdict.Reason = entity.ReasonFiveInRow
			break
		}
	}

	return verdict, nil
}

// validateMove - checks the point and the color before any line is counted.
func validateMove(board *entity.Board, x, y int, color entity.Cell) error {
	if !board.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d)", apperror.ErrInvalidCell, x, y)
	}

	if !color.IsStone() {
		return fmt.Errorf("%w: %d", apperror.ErrInvalidColor, color)
	}

	if board.Get(x, y) != entity.Empty {
		return fmt.Errorf("%w: (%d,%d)", apperror.ErrCellOccupied, x, y)
	}

	return nil
}

// RunLengths returns, per direction, the contiguous run of color through (x, y)
// with (x, y) itself counted as holding color.
func RunLengths(board *entity.Board, x, y int, color entity.Cell) [4]int {
	var runs [4]int
	for i, d := range Directions {
		runs[i] = 1 + countDir(board, x, y, d[0], d[1], color) + countDir(board, x, y, -d[0], -d[1], color)
	}

	return runs
}

func countDir(board *entity.Board, x, y, dx, dy int, color entity.Cell) int {
	count := 0
	for nx, ny := x+dx, y+dy; board.InBounds(nx, ny) && board.Get(nx, ny) == color; nx, ny = nx+dx, ny+dy {
		count++
	}

	return count
}
