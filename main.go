/*
Copyright © 2025 agenthub
*/
package main

import (
	"github.com/agenthub/knowledge-be/cmd"
	"github.com/joho/godotenv"
)

func main() {
	cmd.Execute()
}

func init() {
	// A missing .env file is fine; env vars may come from the environment.
	_ = godotenv.Load()
}
