package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/warehouselabs/replica-gateway/client"
	"github.com/warehouselabs/replica-gateway/gateway"
	"go.uber.org/zap"
)

const reloadConfigV1 = `
project: testproj
groups:
  marts:
    replication:
      replicas: [us-east1, us-west1]
      primary_location: us-east1
datasets:
  reload_orders:
    group: marts
`

const reloadConfigV2 = reloadConfigV1 + `  reload_events:
    group: marts
`

// TestDatasetsConfigReload rewrites the datasets file under a running
// gateway and expects a fresh session that converges the new dataset. It
// runs against its own gateway instance so the session swap cannot disturb
// the other tests.
func (s *GatewayApiTestSuite) TestDatasetsConfigReload() {
	s.T().Logf("setting up new instance of replica gateway...")

	datasetsPath := filepath.Join(s.T().TempDir(), "datasets.yaml")
	err := os.WriteFile(datasetsPath, []byte(reloadConfigV1), 0600)
	s.Require().NoError(err)

	logger, err := zap.NewDevelopment()
	s.Require().NoError(err)

	gwStartInfoCh := make(chan *gateway.StartupInfo, 1)
	gw, err := gateway.NewGateway(&gateway.Config{
		Logger:              logger.Named("reload-gateway"),
		Backend:             gateway.BackendEmulator,
		DatasetsConfigPath:  datasetsPath,
		WatchDatasetsConfig: true,
		BindAddress:         "127.0.0.1",
		BindApiPort:         0,

		StartupCallback: func(m *gateway.StartupInfo) {
			gwStartInfoCh <- m
		},
	})
	s.Require().NoError(err)

	gwCtx, gwCtxCancel := context.WithCancel(context.Background())
	defer gwCtxCancel()

	gwClosedCh := make(chan struct{})
	go func() {
		err := gw.Run(gwCtx)
		if err != nil {
			s.T().Errorf("reload-gateway run failed: %s", err)
		}
		close(gwClosedCh)
	}()

	startInfo := <-gwStartInfoCh

	cli, err := client.New(
		fmt.Sprintf("%s:%d", "127.0.0.1", startInfo.AdvertisePorts.API), nil)
	s.Require().NoError(err)

	sessionHas := func(datasetName string) func() bool {
		return func() bool {
			session, err := cli.GetSession(context.Background())
			if err != nil {
				return false
			}
			for _, entry := range session.Datasets {
				if entry.Dataset == datasetName {
					return true
				}
			}
			return false
		}
	}

	s.Require().Eventually(sessionHas("reload_orders"),
		30*time.Second, 100*time.Millisecond, "initial config never converged")

	firstSession, err := cli.GetSession(context.Background())
	s.Require().NoError(err)

	err = os.WriteFile(datasetsPath, []byte(reloadConfigV2), 0600)
	s.Require().NoError(err)

	s.Require().Eventually(sessionHas("reload_events"),
		30*time.Second, 100*time.Millisecond, "rewritten config never converged")

	secondSession, err := cli.GetSession(context.Background())
	s.Require().NoError(err)
	s.Assert().NotEqual(firstSession.SessionId, secondSession.SessionId,
		"a config change must start a new session")

	topo, err := cli.GetTopology(context.Background(), testProject, "reload_events")
	s.Require().NoError(err)
	s.Assert().Equal(TEST_REPLICAS, topo.Replicas)

	gw.Shutdown()
	<-gwClosedCh
}
