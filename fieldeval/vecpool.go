package fieldeval

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/md3"
)

// VecPool holds reusable scratch buffers for evaluators. Combinators and
// transforms acquire intermediate buffers from it instead of allocating on
// every call. A VecPool is not safe for concurrent use; give each worker its own.
type VecPool struct {
	Samples bufPool[Sample]
	Values  bufPool[Value]
	Float   bufPool[float64]
	V3      bufPool[md3.Vec]
}

// GetVecPool extracts a VecPool from userData. userData may be a *VecPool or
// implement a VecPool() *VecPool method.
func GetVecPool(userData any) (*VecPool, error) {
	switch v := userData.(type) {
	case *VecPool:
		if v == nil {
			return nil, ErrMissingVecPool
		}
		return v, nil
	case interface{ VecPool() *VecPool }:
		vp := v.VecPool()
		if vp == nil {
			return nil, ErrMissingVecPool
		}
		return vp, nil
	}
	return nil, ErrMissingVecPool
}

// AssertAllReleased returns an error if any buffer acquired from vp has not been released.
func (vp *VecPool) AssertAllReleased() error {
	err := errors.Join(
		vp.Samples.assertAllReleased("Samples"),
		vp.Values.assertAllReleased("Values"),
		vp.Float.assertAllReleased("Float"),
		vp.V3.assertAllReleased("V3"),
	)
	return err
}

type bufPool[T any] struct {
	free     [][]T
	acquired [][]T
}

// Acquire returns a buffer of length n. Contents are undefined.
func (bp *bufPool[T]) Acquire(n int) []T {
	for i, b := range bp.free {
		if cap(b) >= n {
			last := len(bp.free) - 1
			bp.free[i] = bp.free[last]
			bp.free[last] = nil
			bp.free = bp.free[:last]
			b = b[:n]
			bp.acquired = append(bp.acquired, b)
			return b
		}
	}
	b := make([]T, n)
	bp.acquired = append(bp.acquired, b)
	return b
}

// Release returns a buffer obtained from Acquire to the pool.
func (bp *bufPool[T]) Release(buf []T) error {
	if cap(buf) == 0 {
		return errors.New("release of zero capacity buffer")
	}
	ptr := &buf[:1][0]
	for i, b := range bp.acquired {
		if &b[:1][0] == ptr {
			last := len(bp.acquired) - 1
			bp.acquired[i] = bp.acquired[last]
			bp.acquired[last] = nil
			bp.acquired = bp.acquired[:last]
			bp.free = append(bp.free, b[:cap(b)])
			return nil
		}
	}
	return errors.New("release of buffer not acquired from pool")
}

func (bp *bufPool[T]) assertAllReleased(name string) error {
	if len(bp.acquired) != 0 {
		return fmt.Errorf("%s: %d buffers not released", name, len(bp.acquired))
	}
	return nil
}
