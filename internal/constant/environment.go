package constant

const (
	ProductionEnvironment  = "production"
	DevelopmentEnvironment = "development"
)

const (
	DateLayout     = "2006/01/02"
	DateTimeLayout = "2006-01-02 15:04:05"
	TickDateLayout = "2006-01-02"
)
