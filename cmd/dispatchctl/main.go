package main

import (
	"github.com/joho/godotenv"

	"dronedispatch/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
