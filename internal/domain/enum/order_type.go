package enum

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// OrderType tells where an order is served
type OrderType string

const (
	OrderTypeTable    OrderType = "table"
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePOS      OrderType = "pos"
)

func (t OrderType) String() string {
	return string(t)
}

func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeTable, OrderTypeDelivery, OrderTypePOS:
		return true
	}
	return false
}

func (t *OrderType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*t = OrderType(str)
	if !t.IsValid() {
		return fmt.Errorf("unknown order type %q", str)
	}
	return nil
}

func (t OrderType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *OrderType) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*t = OrderTypePOS
	case string:
		*t = OrderType(v)
	case []byte:
		*t = OrderType(v)
	default:
		return fmt.Errorf("failed to scan OrderType: unsupported type %T", value)
	}
	return nil
}
