// Package factory builds odoorpc.Handler implementations for the protocol
// variant selected in configuration. It lives outside package odoorpc
// because it imports both protocol variants (jsonrpc, xmlrpc), which in
// turn import odoorpc itself (e.g. for ClassifyFault) -- keeping the
// factory here avoids an import cycle.
package factory

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/odoomcp/gateway/internal/config"
	"github.com/odoomcp/gateway/internal/odoorpc"
	"github.com/odoomcp/gateway/internal/odoorpc/jsonrpc"
	"github.com/odoomcp/gateway/internal/odoorpc/xmlrpc"
)

// New builds a Handler for the protocol variant selected in cfg, wiring up
// TLS from cfg.TLS (spec §4.1: "JSON-RPC variant MUST use ... configurable
// TLS (min version, optional CA/client cert/key)"). x509.CertPool and
// tls.LoadX509KeyPair are the standard-library building blocks for this;
// golang.org/x/crypto is used elsewhere, in internal/transport/httpapi's
// bearer guard, not here.
func New(cfg *config.GatewayConfig, workerCount int) (odoorpc.Handler, error) {
	tlsCfg, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("odoorpc: build tls config: %w", err)
	}

	switch cfg.Protocol {
	case config.ProtocolJSONRPC:
		return jsonrpc.New(jsonrpc.Options{
			BaseURL:   cfg.OdooURL,
			Database:  cfg.Database,
			Timeout:   cfg.Timeout,
			TLSConfig: tlsCfg,
		}), nil
	case config.ProtocolXMLRPC:
		return xmlrpc.New(xmlrpc.Options{
			BaseURL:     cfg.OdooURL,
			Database:    cfg.Database,
			TLSConfig:   tlsCfg,
			WorkerCount: workerCount,
		}), nil
	default:
		return nil, fmt.Errorf("odoorpc: unsupported protocol %q", cfg.Protocol)
	}
}

func buildTLSConfig(tc config.TLSConfig) (*tls.Config, error) {
	if tc.CACertPath == "" && tc.ClientCertPath == "" && tc.MinVersion == "" {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	switch tc.MinVersion {
	case "1.3":
		cfg.MinVersion = tls.VersionTLS13
	case "1.2", "":
		cfg.MinVersion = tls.VersionTLS12
	}
	if tc.CACertPath != "" {
		pem, err := os.ReadFile(tc.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", tc.CACertPath)
		}
		cfg.RootCAs = pool
	}
	if tc.ClientCertPath != "" && tc.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(tc.ClientCertPath, tc.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
