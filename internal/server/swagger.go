package server

//go:generate swag init -g internal/server/server.go -o internal/server/docs

// @title webaudit API
// @version 0.1
// @description Starts website scans and serves their live results.
// @contact.name webaudit maintainers
// @contact.url https://github.com/raysh454/webaudit
// @BasePath /
