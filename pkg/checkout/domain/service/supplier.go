package service

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
)

var ErrInvalidQuantity = errors.New("quantity must be a positive number")

type SupplierAllocation struct {
	SupplierID uuid.UUID
	Quantity   int
	UnitCost   decimal.Decimal
	TotalCost  decimal.Decimal
}

type Allocation struct {
	Lines []SupplierAllocation
	// WeightedUnitCost is sum(TotalCost) / requested quantity and becomes the
	// product's snapshotted cost. Zero when there are no suppliers.
	WeightedUnitCost decimal.Decimal
}

func (a Allocation) HasSuppliers() bool {
	return len(a.Lines) > 0
}

// AllocateSuppliers walks suppliers (ascending priority) and hands the whole
// remaining quantity to the first eligible one. A supplier whose minimum order
// exceeds the remainder is skipped unless nothing is allocated yet, in which
// case it receives its minimum even beyond demand. Leftovers are merged into
// the last allocation.
func AllocateSuppliers(suppliers []model.ProductSupplier, totalQuantity int) (Allocation, error) {
	if totalQuantity <= 0 {
		return Allocation{}, ErrInvalidQuantity
	}
	if len(suppliers) == 0 {
		return Allocation{WeightedUnitCost: decimal.Zero}, nil
	}

	var lines []SupplierAllocation
	remaining := totalQuantity
	for _, supplier := range suppliers {
		if remaining <= 0 {
			break
		}
		if supplier.MinOrderQuantity > remaining && len(lines) > 0 {
			continue
		}
		quantity := remaining
		if supplier.MinOrderQuantity > quantity {
			quantity = supplier.MinOrderQuantity
		}
		lines = append(lines, newSupplierAllocation(supplier.SupplierID, quantity, supplier.Cost))
		remaining -= quantity
	}

	if remaining > 0 {
		if len(lines) == 0 {
			last := suppliers[len(suppliers)-1]
			lines = append(lines, newSupplierAllocation(last.SupplierID, remaining, last.Cost))
		} else {
			last := &lines[len(lines)-1]
			*last = newSupplierAllocation(last.SupplierID, last.Quantity+remaining, last.UnitCost)
		}
	}

	totalCost := decimal.Zero
	for _, line := range lines {
		totalCost = totalCost.Add(line.TotalCost)
	}
	return Allocation{
		Lines:            lines,
		WeightedUnitCost: totalCost.Div(decimal.NewFromInt(int64(totalQuantity))).Round(4),
	}, nil
}

func newSupplierAllocation(supplierID uuid.UUID, quantity int, unitCost decimal.Decimal) SupplierAllocation {
	return SupplierAllocation{
		SupplierID: supplierID,
		Quantity:   quantity,
		UnitCost:   unitCost,
		TotalCost:  unitCost.Mul(decimal.NewFromInt(int64(quantity))),
	}
}
