package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/soundprediction/megamem/pkg/hub"
	"github.com/soundprediction/megamem/pkg/rpcbridge"
)

// healthProbeTimeout keeps role election fast; a healthy hub on localhost
// answers well under this.
const healthProbeTimeout = 200 * time.Millisecond

// probeHealth checks for an existing hub on the port. Returns the HTTP
// status code, or an error when nothing answered.
func probeHealth(port int, authToken string) (int, error) {
	client := &http.Client{Timeout: healthProbeTimeout}

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/health", port), nil)
	if err != nil {
		return 0, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "address already in use")
}

// startVaultService decides this process's role. Exactly one process per
// port owns the hub; everyone else talks to it over HTTP. The role is final
// for the process lifetime.
func (s *MCPServer) startVaultService() error {
	s.logger.Info("Probing for existing hub", "port", s.port)

	status, err := probeHealth(s.port, s.authToken)
	if err == nil {
		switch status {
		case http.StatusOK:
			return s.becomeRPCClient()
		case http.StatusUnauthorized:
			// A server is present even though it rejects our token; vault
			// operations will carry the mismatch error.
			s.logger.Warn("Existing hub rejected the auth token, attaching as RPC client", "port", s.port)
			return s.becomeRPCClient()
		default:
			s.logger.Warn("Existing hub answered unexpectedly", "port", s.port, "status", status)
		}
	}

	h := hub.NewServer(s.port, s.authToken, s.logger)
	startErr := h.Start()
	if startErr == nil {
		s.logger.Info("Hub started, this process owns the vault connections", "port", s.port)
		s.service = h
		s.shutdown = append(s.shutdown, func(ctx context.Context) { h.Stop(ctx) })
		return nil
	}

	if !isAddrInUse(startErr) {
		return fmt.Errorf("failed to start hub: %w", startErr)
	}

	// Lost the bind race to another process; it may not have been
	// answering yet when we probed.
	s.logger.Info("Port in use, re-probing before becoming RPC client", "port", s.port)
	status, err = probeHealth(s.port, s.authToken)
	if err == nil && (status == http.StatusOK || status == http.StatusUnauthorized) {
		return s.becomeRPCClient()
	}

	return fmt.Errorf("Port conflict on %d - no accessible server found", s.port)
}

func (s *MCPServer) becomeRPCClient() error {
	bridge, err := rpcbridge.New("127.0.0.1", s.port, s.authToken, s.logger)
	if err != nil {
		return err
	}
	s.logger.Info("Using existing hub as RPC client", "port", s.port)
	s.service = bridge
	s.rpcMode = true
	return nil
}
