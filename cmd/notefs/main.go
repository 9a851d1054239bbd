package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	a := &app{}
	err := a.command().Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "notefs:", err)
		os.Exit(1)
	}
}
