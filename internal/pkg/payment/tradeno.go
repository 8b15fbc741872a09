package payment

import (
	"fmt"
	"strconv"
	"strings"
)

const outTradeNoPrefix = "ORDER_"

// FormatOutTradeNo is the merchant trade reference sent to the gateway.
func FormatOutTradeNo(orderID uint) string {
	return fmt.Sprintf("%s%d", outTradeNoPrefix, orderID)
}

// ParseOutTradeNo extracts the order id from an ORDER_<id> reference.
func ParseOutTradeNo(s string) (uint, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(s), outTradeNoPrefix)
	if !ok || raw == "" {
		return 0, fmt.Errorf("payment: malformed out_trade_no %q", s)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("payment: malformed out_trade_no %q", s)
	}
	return uint(id), nil
}
