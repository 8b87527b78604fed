package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/warehouselabs/replica-gateway/gateway"
	"github.com/warehouselabs/replica-gateway/utils/buildversion"
	"go.uber.org/zap"
)

var datasetsConfig = flag.String("datasets-config", "", "a datasets configuration file to converge and watch")
var apiPort = flag.Int("api-port", 8098, "the port to serve the api on")
var apiUser = flag.String("api-user", "", "an api username to require")
var apiPass = flag.String("api-pass", "", "an api password to require")

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Printf("failed to initialize logging: %s", err)
		os.Exit(1)
	}

	buildVersion := buildversion.GetVersion("github.com/warehouselabs/replica-gateway")
	logger.Info("starting replica-gateway in dev mode", zap.String("version", buildVersion))

	// The dev gateway always runs against the in-memory emulator so it can
	// be poked at without warehouse credentials.
	err = gateway.Run(context.Background(), &gateway.Config{
		Logger:              logger.Named("gateway"),
		Backend:             gateway.BackendEmulator,
		DatasetsConfigPath:  *datasetsConfig,
		WatchDatasetsConfig: *datasetsConfig != "",
		ApplyConcurrency:    2,
		Debug:               true,
		BindApiPort:         *apiPort,
		Username:            *apiUser,
		Password:            *apiPass,

		StartupCallback: func(info *gateway.StartupInfo) {
			logger.Info("dev gateway is serving",
				zap.String("address", fmt.Sprintf("%s:%d", info.AdvertiseAddr, info.AdvertisePorts.API)),
				zap.String("sessionId", info.SessionID))
		},
	})
	if err != nil {
		log.Printf("failed to run the gateway: %s", err)
		os.Exit(1)
	}
}
