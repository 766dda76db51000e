package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ChenBigdata421/jxt-saga/internal/bootstrap"
)

func main() {
	configPath := flag.String("c", "config/payment-service.yml", "配置文件路径")
	flag.Parse()

	if err := bootstrap.Main(*configPath, bootstrap.Payment); err != nil {
		fmt.Fprintf(os.Stderr, "payment-service: %v\n", err)
		os.Exit(1)
	}
}
