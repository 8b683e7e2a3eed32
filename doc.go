// Package laplace provides a typed client for the Laplace stock data API.
//
// REST base URL:
//   - Production: https://api.finfree.app/api
//
// Resource groups: stocks, collections (themes, industries, sectors),
// financials, funds, politicians, brokers, capital increases, earnings,
// search, and market state. Live price data is available either as
// server-sent event streams (Stream* methods) or over the WebSocket feed
// implemented by the livefeed subpackage.
//
// All REST requests authenticate with the API key as a query parameter;
// streaming endpoints use bearer authentication.
package laplace
