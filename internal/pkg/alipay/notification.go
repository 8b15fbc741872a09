package alipay

import "net/url"

// Notification is the subset of the asynchronous notify fields the ledger
// acts on.
type Notification struct {
	NotifyID    string
	NotifyTime  string
	AppID       string
	OutTradeNo  string
	TradeNo     string
	TradeStatus string
	TotalAmount string
	BuyerID     string
}

func ParseNotification(values url.Values) Notification {
	return Notification{
		NotifyID:    values.Get("notify_id"),
		NotifyTime:  values.Get("notify_time"),
		AppID:       values.Get("app_id"),
		OutTradeNo:  values.Get("out_trade_no"),
		TradeNo:     values.Get("trade_no"),
		TradeStatus: values.Get("trade_status"),
		TotalAmount: values.Get("total_amount"),
		BuyerID:     values.Get("buyer_id"),
	}
}

func (n Notification) IsPaid() bool {
	return n.TradeStatus == TradeStatusSuccess || n.TradeStatus == TradeStatusFinished
}

func (n Notification) IsClosed() bool {
	return n.TradeStatus == TradeStatusClosed
}
