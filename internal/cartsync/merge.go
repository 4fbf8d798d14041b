package cartsync

import "github.com/utafrali/storefront/internal/domain"

// MergeItems folds a guest cart into a remote cart. A product present in both
// keeps the remote line's fields with the quantities summed; guest-only lines
// are appended in guest order. Neither input is modified.
func MergeItems(remote, guest []domain.LineItem) []domain.LineItem {
	merged := domain.CloneItems(remote)
	index := make(map[domain.ID]int, len(merged)+len(guest))
	for i, li := range merged {
		if _, dup := index[li.ProductID]; !dup {
			index[li.ProductID] = i
		}
	}

	for _, g := range guest {
		if i, ok := index[g.ProductID]; ok {
			merged[i].Quantity += g.Quantity
			continue
		}
		index[g.ProductID] = len(merged)
		merged = append(merged, g)
	}
	return merged
}
