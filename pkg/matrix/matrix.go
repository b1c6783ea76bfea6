// Package matrix provides a dense row-major matrix with elementwise and
// product operations.
package matrix

import (
	"errors"
	"fmt"
)

var (
	ErrBadShape          = errors.New("matrix: rows and cols must be positive")
	ErrDimensionMismatch = errors.New("matrix: dimension mismatch")
	ErrOutOfRange        = errors.New("matrix: index out of range")
)

// Number covers the element types a Matrix can hold.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Matrix is a rows x cols container backed by one row-major slice.
type Matrix[T Number] struct {
	rows int
	cols int
	data []T
}

func New[T Number](rows, cols int) (*Matrix[T], error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadShape, rows, cols)
	}
	return &Matrix[T]{
		rows: rows,
		cols: cols,
		data: make([]T, rows*cols),
	}, nil
}

func (m *Matrix[T]) Rows() int { return m.rows }
func (m *Matrix[T]) Cols() int { return m.cols }

func (m *Matrix[T]) At(i, j int) (T, error) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		var zero T
		return zero, fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, i, j)
	}
	return m.data[i*m.cols+j], nil
}

func (m *Matrix[T]) Set(i, j int, v T) error {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, i, j)
	}
	m.data[i*m.cols+j] = v
	return nil
}

// Fill copies src into the matrix in row-major order. len(src) must be
// exactly rows*cols.
func (m *Matrix[T]) Fill(src []T) error {
	if len(src) != len(m.data) {
		return fmt.Errorf("%w: need %d elements, got %d", ErrDimensionMismatch, len(m.data), len(src))
	}
	copy(m.data, src)
	return nil
}

// Add returns a + b. Both operands must have identical shapes.
func Add[T Number](a, b *Matrix[T]) (*Matrix[T], error) {
	if a.rows != b.rows || a.cols != b.cols {
		return nil, fmt.Errorf("%w: %dx%d + %dx%d", ErrDimensionMismatch, a.rows, a.cols, b.rows, b.cols)
	}

	out, err := New[T](a.rows, a.cols)
	if err != nil {
		return nil, err
	}
	for i := range a.data {
		out.data[i] = a.data[i] + b.data[i]
	}
	return out, nil
}

// Multiply returns the product a * b; a's column count must equal b's
// row count.
func Multiply[T Number](a, b *Matrix[T]) (*Matrix[T], error) {
	if a.cols != b.rows {
		return nil, fmt.Errorf("%w: %dx%d * %dx%d", ErrDimensionMismatch, a.rows, a.cols, b.rows, b.cols)
	}

	out, err := New[T](a.rows, b.cols)
	if err != nil {
		return nil, err
	}
	for i := 0; i < a.rows; i++ {
		for k := 0; k < a.cols; k++ {
			aik := a.data[i*a.cols+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < b.cols; j++ {
				out.data[i*b.cols+j] += aik * b.data[k*b.cols+j]
			}
		}
	}
	return out, nil
}

// GEMM returns a*b + c.
func GEMM[T Number](a, b, c *Matrix[T]) (*Matrix[T], error) {
	prod, err := Multiply(a, b)
	if err != nil {
		return nil, err
	}
	return Add(prod, c)
}
