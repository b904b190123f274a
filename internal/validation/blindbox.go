package validation

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/blindbox-shop/internal/model"
)

// ProbabilityTolerance: допустимое отклонение суммы вероятностей от 100 при прокруте.
const ProbabilityTolerance = 1

var (
	// ErrNoEntries возвращается для коробки без товаров.
	ErrNoEntries = errors.New("blindbox has no products")
	// ErrProbabilityRange возвращается для вероятности вне [0, 100].
	ErrProbabilityRange = errors.New("probability must be within [0, 100]")
	// ErrDuplicateProduct возвращается, если товар указан в коробке дважды.
	ErrDuplicateProduct = errors.New("product listed twice")
	// ErrProbabilitySum возвращается, если сумма вероятностей не равна 100.
	ErrProbabilitySum = errors.New("probabilities must sum to 100")
)

// BlindBoxEntries проверяет состав коробки при создании и редактировании.
// Сумма вероятностей должна быть ровно 100.
func BlindBoxEntries(entries []model.BlindBoxEntry) error {
	if len(entries) == 0 {
		return ErrNoEntries
	}

	seen := make(map[int64]struct{}, len(entries))
	total := 0
	for i, e := range entries {
		if e.Probability < 0 || e.Probability > 100 {
			return fmt.Errorf("%w: entry %d has %d", ErrProbabilityRange, i, e.Probability)
		}
		if _, ok := seen[e.ProductID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateProduct, e.ProductID)
		}
		seen[e.ProductID] = struct{}{}
		total += e.Probability
	}

	if total != 100 {
		return fmt.Errorf("%w: got %d", ErrProbabilitySum, total)
	}
	return nil
}

// SpinnableBox проверяет целостность конфигурации коробки перед прокрутом.
func SpinnableBox(box *model.BlindBox) error {
	if len(box.Products) == 0 {
		return ErrNoEntries
	}
	total := box.ProbabilityTotal()
	diff := total - 100
	if diff < 0 {
		diff = -diff
	}
	if diff > ProbabilityTolerance {
		return fmt.Errorf("%w: got %d", ErrProbabilitySum, total)
	}
	return nil
}
