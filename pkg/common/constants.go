package common

const (
	RedisStreamTradeSignal = "trade.signal"

	RedisStreamGroup    = "trader-group"
	RedisStreamConsumer = "trader-consumer"

	RedisChannelActivity = "trader.activity"

	AppEnvProduction = "production"
)
