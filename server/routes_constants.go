package server

// Route path constants
const (
	RouteLogin           = "/login"
	RouteGetTransactions = "/get-transactions"
	RouteHealth          = "/health"
)
