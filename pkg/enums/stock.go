package enums

import "fmt"

// StockTransactionKind classifies an entry in the stock ledger.
type StockTransactionKind string

const (
	StockTransactionReceived StockTransactionKind = "received"
	StockTransactionReserved StockTransactionKind = "reserved"
	StockTransactionReleased StockTransactionKind = "released"
	StockTransactionDeducted StockTransactionKind = "deducted"
	StockTransactionAdjusted StockTransactionKind = "adjusted"
)

var validStockTransactionKinds = []StockTransactionKind{
	StockTransactionReceived,
	StockTransactionReserved,
	StockTransactionReleased,
	StockTransactionDeducted,
	StockTransactionAdjusted,
}

func (k StockTransactionKind) String() string {
	return string(k)
}

func (k StockTransactionKind) IsValid() bool {
	for _, candidate := range validStockTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseStockTransactionKind converts raw input into a StockTransactionKind.
func ParseStockTransactionKind(value string) (StockTransactionKind, error) {
	for _, candidate := range validStockTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock transaction kind %q", value)
}

// StockAlertType distinguishes low from exhausted stock.
type StockAlertType string

const (
	StockAlertLowStock   StockAlertType = "low_stock"
	StockAlertOutOfStock StockAlertType = "out_of_stock"
)

func (t StockAlertType) String() string {
	return string(t)
}

func (t StockAlertType) IsValid() bool {
	return t == StockAlertLowStock || t == StockAlertOutOfStock
}

// StockAlertStatus tracks an alert from raise to resolution.
type StockAlertStatus string

const (
	StockAlertStatusActive       StockAlertStatus = "active"
	StockAlertStatusAcknowledged StockAlertStatus = "acknowledged"
	StockAlertStatusResolved     StockAlertStatus = "resolved"
)

var validStockAlertStatuses = []StockAlertStatus{
	StockAlertStatusActive,
	StockAlertStatusAcknowledged,
	StockAlertStatusResolved,
}

func (s StockAlertStatus) String() string {
	return string(s)
}

func (s StockAlertStatus) IsValid() bool {
	for _, candidate := range validStockAlertStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockAlertStatus converts raw input into a StockAlertStatus.
func ParseStockAlertStatus(value string) (StockAlertStatus, error) {
	for _, candidate := range validStockAlertStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock alert status %q", value)
}
