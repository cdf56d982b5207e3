package main

import (
	"log"

	"nftstake/services/stakingd"
)

func main() {
	if err := stakingd.Main(); err != nil {
		log.Fatalf("stakingd: %v", err)
	}
}
