package main

// General API documentation for swaggo. Run `swag init -g cmd/chatd/docs.go
// -o internal/httpapi/docs` to regenerate.
//
// @title           chatd API
// @version         1.0
// @description     HTTP API for a local LLM chat session.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
