package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warehouselabs/replica-gateway/client"
)

func (s *GatewayApiTestSuite) TestHealth() {
	// the health endpoint stays open without credentials so load balancers
	// can probe it
	resp, err := http.Get(fmt.Sprintf("http://%s/health", s.apiAddress))
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	s.Require().NoError(err)
	s.Assert().Equal("SERVING", health.Status)
}

func (s *GatewayApiTestSuite) TestAuthentication() {
	s.Run("NoCredentials", func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/v1/session", s.apiAddress))
		s.Require().NoError(err)
		defer resp.Body.Close()

		s.Assert().Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Assert().NotEmpty(resp.Header.Get("WWW-Authenticate"))
	})

	s.Run("BadCredentials", func() {
		badClient, err := client.New(s.apiAddress, &client.Options{
			Username: testUsername,
			Password: "not-the-password",
		})
		s.Require().NoError(err)

		_, err = badClient.GetSession(context.Background())
		s.Require().Error(err)

		var serverErr *client.ServerError
		s.Require().ErrorAs(err, &serverErr)
		s.Assert().Equal(http.StatusForbidden, serverErr.StatusCode)
	})
}
