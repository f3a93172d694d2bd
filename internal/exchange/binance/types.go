package binance

import "strconv"

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type APIError struct {
	Code int
	Msg  string
}

func (e APIError) Error() string {
	return "binance api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

type openOrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	PositionSide  string `json:"positionSide"`
	Type          string `json:"type"`
	Time          int64  `json:"time"`
}

// orderTradeUpdate is the ORDER_TRADE_UPDATE envelope from the futures
// user-data stream; only the fields the guard inspects are decoded.
type orderTradeUpdate struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Order     struct {
		Symbol        string `json:"s"`
		ClientOrderID string `json:"c"`
		Side          string `json:"S"`
		Type          string `json:"o"`
		Status        string `json:"X"`
		PositionSide  string `json:"ps"`
		ClosePosition bool   `json:"cp"`
	} `json:"o"`
}
