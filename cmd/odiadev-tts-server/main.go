// @title ODIADEV Nigerian Multilingual TTS API
// @version 2.0
// @description Speech synthesis gateway with Nigerian voices, per-key quotas and voice cloning
// @host localhost:5000
// @BasePath /
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"odiadev-tts-server-go/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default: $TTS_CONFIG, then ./config.yaml)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(bootstrap.Version)
		return
	}

	var opts []bootstrap.Option
	if *configPath != "" {
		opts = append(opts, bootstrap.WithConfigPath(*configPath))
	}
	if err := bootstrap.Run(context.Background(), opts...); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "odiadev-tts-server: %v\n", err)
		os.Exit(1)
	}
}
