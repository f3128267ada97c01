package httpapi

// DefaultOperator is used when a request carries no operator header.
const DefaultOperator = "operator"

// OperatorHeader names the operator a request acts for.
const OperatorHeader = "X-Operator"

// Config defines HTTP API settings.
type Config struct {
	Addr               string
	BasePath           string
	DefaultOperator    string
	InitialBufferLines int
	HubHistory         int
}
