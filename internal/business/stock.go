package business

import (
	"fmt"
	"slices"

	"soapstock/backend/internal/domain"
)

func TotalStock(levels []domain.FragranceStock) int {
	total := 0
	for _, level := range levels {
		total += level.Quantity
	}
	return total
}

func HasSufficientStock(current, requested int) bool {
	return current >= requested
}

// ValidateDistribution checks that a carton distribution only names known
// fragrances, holds no negative counts and sums to cartons.
func ValidateDistribution(dist map[string]int, cartons int, levels []domain.FragranceStock) error {
	known := make(map[string]bool, len(levels))
	for _, level := range levels {
		known[level.FragranceID] = true
	}
	sum := 0
	for id, qty := range dist {
		if !known[id] {
			return domain.Invalid("fragranceDistribution", fmt.Sprintf("unknown fragrance %q", id))
		}
		if qty < 0 {
			return domain.Invalid("fragranceDistribution", fmt.Sprintf("negative count for fragrance %q", id))
		}
		sum += qty
	}
	if sum != cartons {
		return domain.Invalid("fragranceDistribution", fmt.Sprintf("distribution totals %d cartons, expected %d", sum, cartons))
	}
	return nil
}

// ApplyDeltas returns the fragrance levels after applying signed deltas. It
// fails without modifying anything if a fragrance is unknown or would go
// below zero.
func ApplyDeltas(levels []domain.FragranceStock, deltas map[string]int) ([]domain.FragranceStock, error) {
	out := make([]domain.FragranceStock, len(levels))
	copy(out, levels)
	index := make(map[string]int, len(out))
	for i, level := range out {
		index[level.FragranceID] = i
	}
	for id, delta := range deltas {
		i, ok := index[id]
		if !ok {
			return nil, domain.Invalid("fragranceDistribution", fmt.Sprintf("unknown fragrance %q", id))
		}
		next := out[i].Quantity + delta
		if next < 0 {
			return nil, fmt.Errorf("%w: %s has %d cartons, %d requested", domain.ErrInsufficientStock, out[i].Name, out[i].Quantity, -delta)
		}
		out[i].Quantity = next
	}
	return out, nil
}

// EvenDistribution spreads cartons across fragrances in id order, the first
// fragrances taking the remainder.
func EvenDistribution(fragranceIDs []string, cartons int) map[string]int {
	if len(fragranceIDs) == 0 || cartons == 0 {
		return map[string]int{}
	}
	ids := slices.Clone(fragranceIDs)
	slices.Sort(ids)
	per := cartons / len(ids)
	rest := cartons % len(ids)
	out := make(map[string]int, len(ids))
	for i, id := range ids {
		qty := per
		if i < rest {
			qty++
		}
		if qty != 0 {
			out[id] = qty
		}
	}
	return out
}

// AllocateFromStock picks cartons from the best-stocked fragrances first.
// Ties break on fragrance id so the result is deterministic.
func AllocateFromStock(levels []domain.FragranceStock, cartons int) (map[string]int, error) {
	if cartons <= 0 {
		return map[string]int{}, nil
	}
	if total := TotalStock(levels); total < cartons {
		return nil, fmt.Errorf("%w: %d cartons in stock, %d requested", domain.ErrInsufficientStock, total, cartons)
	}
	sorted := slices.Clone(levels)
	slices.SortFunc(sorted, func(a, b domain.FragranceStock) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		if a.FragranceID < b.FragranceID {
			return -1
		}
		if a.FragranceID > b.FragranceID {
			return 1
		}
		return 0
	})

	out := make(map[string]int)
	remaining := cartons
	for _, level := range sorted {
		if remaining == 0 {
			break
		}
		take := min(level.Quantity, remaining)
		if take > 0 {
			out[level.FragranceID] = take
			remaining -= take
		}
	}
	return out, nil
}

// Negate flips the sign of every count, turning a sale distribution into
// stock deltas.
func Negate(dist map[string]int) map[string]int {
	out := make(map[string]int, len(dist))
	for id, qty := range dist {
		out[id] = -qty
	}
	return out
}

func SumDistribution(dist map[string]int) int {
	sum := 0
	for _, qty := range dist {
		sum += qty
	}
	return sum
}
