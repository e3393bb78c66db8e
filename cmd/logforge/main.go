package main

import "os"

// @title LogForge API
// @version 1.0
// @description Multi-tenant log ingestion pipeline: run trigger and daily metric queries.
// @BasePath /
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
