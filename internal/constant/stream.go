package constant

const (
	TradingStreamName       = "sj_trading"
	TradingStreamSubjectAll = "sj_trading.>"

	TradingStreamSubjectTick  = "sj_trading.tick"
	TradingStreamSubjectOrder = "sj_trading.order"
	TradingStreamSubjectOCO   = "sj_trading.oco"
)
