package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/safety-beacon/internal/config"
	"github.com/and161185/safety-beacon/internal/geocode"
	"github.com/and161185/safety-beacon/internal/geocode/nominatim"
	"github.com/and161185/safety-beacon/internal/navigator"
	"github.com/and161185/safety-beacon/internal/notice"
	"github.com/and161185/safety-beacon/internal/recordstore/httpstore"
	"github.com/and161185/safety-beacon/internal/session"
)

type app struct {
	cfg     config.Client
	log     *zap.Logger
	store   *httpstore.Client
	manager *session.Manager
	nav     *navigator.Navigator
}

func wireApp(cmd *cobra.Command, st *state) (*app, error) {
	cfg, err := config.Load(st.v, st.flags.configFile)
	if err != nil {
		return nil, err
	}
	cc := cfg.Client

	log := newLogger(cmd.ErrOrStderr(), st.flags.debug)

	tc, err := loadTLS(cc.CACert, cc.Insecure)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Timeout: cc.Timeout, Transport: &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tc,
	}}

	store, err := httpstore.New(cc.ServerURL, httpstore.NewCache(cc.SessionPath), log, httpstore.WithHTTPClient(hc))
	if err != nil {
		return nil, err
	}

	notify := notice.NewWriter(cmd.ErrOrStderr())
	resolver, err := session.NewResolver(store, session.DefaultCacheSize, log)
	if err != nil {
		return nil, err
	}
	provider, err := nominatim.New(cc.Geocoder.BaseURL, cc.Geocoder.UserAgent, log, nominatim.WithRetries(cc.Geocoder.Retries))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cc,
		log:     log,
		store:   store,
		manager: session.NewManager(store, resolver, notify, log),
		nav:     navigator.New(store, geocode.New(provider, log), notify, log),
	}, nil
}

// newLogger writes warnings and errors as JSON to w; --debug switches to the development console format.
func newLogger(w io.Writer, debug bool) *zap.Logger {
	if debug {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zap.DebugLevel), zap.Development(), zap.AddCaller())
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zap.WarnLevel))
}

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}
