// Package prize реализует взвешенный выбор приза по накопленной вероятности.
package prize

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNoEntries возвращается для пустого списка кандидатов.
	ErrNoEntries = errors.New("prize: no entries")
	// ErrZeroTotalWeight возвращается, если сумма весов равна нулю.
	ErrZeroTotalWeight = errors.New("prize: total weight is zero")
	// ErrNegativeWeight возвращается для отрицательного веса.
	ErrNegativeWeight = errors.New("prize: negative weight")
)

// Source выдаёт равномерное целое в полуинтервале [0, n).
// *math/rand/v2.Rand удовлетворяет интерфейсу.
type Source interface {
	Int64N(n int64) int64
}

// Entry: кандидат на выигрыш.
type Entry struct {
	Ref    int64
	Weight int
}

// Result: выбранный кандидат и его позиция во входном списке.
type Result struct {
	Ref   int64
	Index int
}

// Select выбирает кандидата с вероятностью, пропорциональной весу.
// Веса не обязаны давать в сумме ровно 100.
func Select(src Source, entries []Entry) (Result, error) {
	if len(entries) == 0 {
		return Result{}, ErrNoEntries
	}

	var total int64
	for i, e := range entries {
		if e.Weight < 0 {
			return Result{}, fmt.Errorf("%w at index %d", ErrNegativeWeight, i)
		}
		total += int64(e.Weight)
	}
	if total == 0 {
		return Result{}, ErrZeroTotalWeight
	}

	r := src.Int64N(total)

	var cum int64
	for i, e := range entries {
		cum += int64(e.Weight)
		if cum > r {
			return Result{Ref: e.Ref, Index: i}, nil
		}
	}

	last := len(entries) - 1
	return Result{Ref: entries[last].Ref, Index: last}, nil
}

// CryptoSource: источник на crypto/rand, используется по умолчанию.
type CryptoSource struct{}

// Int64N возвращает равномерное число в [0, n). Паникует при n <= 0, как и math/rand.
func (CryptoSource) Int64N(n int64) int64 {
	if n <= 0 {
		panic("prize: invalid argument to Int64N")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		panic(fmt.Sprintf("prize: crypto/rand failed: %v", err))
	}
	return v.Int64()
}
