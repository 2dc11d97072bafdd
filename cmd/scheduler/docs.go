package main

//go:generate swag init -g cmd/scheduler/main.go -o docs

// @title           0DTE Decision Service API
// @version         0.1.0
// @description     Decision pipeline runs, scheduled job control and market calendar status.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
