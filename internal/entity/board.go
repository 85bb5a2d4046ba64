package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rocketscienceinc/renju-backend/internal/apperror"
)

// BoardSize is the side of the standard Renju board.
const BoardSize = 15

// Cell is the state of a single intersection. Black and White double as stone colors.
type Cell uint8

const (
	Empty Cell = iota
	Black
	White
)

// IsStone reports whether the cell value is a playable color.
func (that Cell) IsStone() bool {
	return that == Black || that == White
}

// Opposite returns the other color. Empty stays Empty.
func (that Cell) Opposite() Cell {
	switch that {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

func (that Cell) String() string {
	switch that {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

func (that Cell) symbol() byte {
	switch that {
	case Black:
		return 'X'
	case White:
		return 'O'
	default:
		return '.'
	}
}

// Board is a fixed N×N grid of cells addressed by (x, y), x being the column.
type Board struct {
	size   int
	cells  []Cell
	stones int
}

func NewBoard(size int) *Board {
	return &Board{
		size:  size,
		cells: make([]Cell, size*size),
	}
}

func (that *Board) Size() int {
	return that.size
}

func (that *Board) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < that.size && y < that.size
}

// Get returns the cell at (x, y), or Empty when the point is off the board.
func (that *Board) Get(x, y int) Cell {
	if !that.InBounds(x, y) {
		return Empty
	}

	return that.cells[y*that.size+x]
}

// Place puts a stone on an empty intersection. It does not know about turns or rules.
func (that *Board) Place(x, y int, color Cell) error {
	if !that.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d)", apperror.ErrInvalidCell, x, y)
	}

	if !color.IsStone() {
		return fmt.Errorf("%w: %d", apperror.ErrInvalidColor, color)
	}

	idx := y*that.size + x
	if that.cells[idx] != Empty {
		return fmt.Errorf("%w: (%d,%d)", apperror.ErrCellOccupied, x, y)
	}

	that.cells[idx] = color
	that.stones++

	return nil
}

func (that *Board) IsFull() bool {
	return that.stones == len(that.cells)
}

func (that *Board) Stones() int {
	return that.stones
}

func (that *Board) Clone() *Board {
	cells := make([]Cell, len(that.cells))
	copy(cells, that.cells)

	return &Board{size: that.size, cells: cells, stones: that.stones}
}

// String renders the board one row per line: '.' empty, 'X' black, 'O' white.
func (that *Board) String() string {
	var sb strings.Builder
	sb.Grow(that.size * (that.size + 1))

	for y := 0; y < that.size; y++ {
		for x := 0; x < that.size; x++ {
			sb.WriteByte(that.Get(x, y).symbol())
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}

// MarshalJSON encodes the grid as rows of numbers (0 empty, 1 black, 2 white).
// []Cell would otherwise be encoded as a byte string.
func (that *Board) MarshalJSON() ([]byte, error) {
	rows := make([][]int, that.size)
	for y := range rows {
		rows[y] = make([]int, that.size)
		for x := range rows[y] {
			rows[y][x] = int(that.Get(x, y))
		}
	}

	return json.Marshal(rows)
}

func (that *Board) UnmarshalJSON(data []byte) error {
	var rows [][]int
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("failed to unmarshal board: %w", err)
	}

	board := NewBoard(len(rows))
	for y, row := range rows {
		if len(row) != len(rows) {
			return fmt.Errorf("board row %d has %d cells, expected %d", y, len(row), len(rows))
		}

		for x, cell := range row {
			if cell == int(Empty) {
				continue
			}

			if cell < 0 || cell > int(White) {
				return fmt.Errorf("%w: %d", apperror.ErrInvalidColor, cell)
			}

			if err := board.Place(x, y, Cell(cell)); err != nil {
				return fmt.Errorf("failed to unmarshal board: %w", err)
			}
		}
	}

	*that = *board

	return nil
}

// Replay folds a committed move log into a fresh board. Moves must carry
// consecutive sequence numbers starting at 1.
func Replay(size int, moves []Move) (*Board, error) {
	board := NewBoard(size)

	for i, move := range moves {
		if expected := uint64(i + 1); move.Seq != expected {
			return nil, fmt.Errorf("%w: expected %d got %d", apperror.ErrSequenceGap, expected, move.Seq)
		}

		if err := board.Place(move.X, move.Y, move.Color); err != nil {
			return nil, fmt.Errorf("failed to replay move %d: %w", move.Seq, err)
		}
	}

	return board, nil
}
