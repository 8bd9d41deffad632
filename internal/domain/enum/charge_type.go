package enum

// ChargeType represents how an extra charge scales with the order
type ChargeType string

const (
	// ChargeTypeFlatFee is applied once per order regardless of item count
	ChargeTypeFlatFee ChargeType = "FLAT_FEE"
	// ChargeTypePerItem is multiplied by the total item quantity of the order
	ChargeTypePerItem ChargeType = "PER_ITEM"
)

func (t ChargeType) String() string {
	return string(t)
}

func (t ChargeType) IsValid() bool {
	return t == ChargeTypeFlatFee || t == ChargeTypePerItem
}
