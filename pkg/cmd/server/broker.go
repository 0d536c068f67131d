package server

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/eventbroker/config"
	"github.com/nsyszr/eventbroker/pkg/api"
	"github.com/nsyszr/eventbroker/pkg/authority"
	"github.com/nsyszr/eventbroker/pkg/eventbroker"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/natsio"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/websocket"
	"github.com/nsyszr/eventbroker/pkg/storage"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type brokerServer struct {
	c      *config.Config
	quitCh chan bool
	doneCh chan bool

	nc         *nats.Conn
	errCh      chan error
	store      storage.Interface
	closeStore func()

	hub        *websocket.Hub
	supervisor *eventbroker.Supervisor
	broker     *eventbroker.Broker
}

func newBrokerServer(c *config.Config) (*brokerServer, error) {
	s := &brokerServer{
		c:      c,
		quitCh: make(chan bool),
		doneCh: make(chan bool),
		errCh:  make(chan error, 1),
	}

	store, closeStore, err := openStore(c)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.closeStore = closeStore

	nc, err := connectNATS(c, "eventbroker", s.errCh, nil)
	if err != nil {
		closeStore()
		return nil, err
	}
	s.nc = nc

	return s, nil
}

// wire creates the broker with its transports, the keep-alive supervisor and
// the NATS adapters.
func (s *brokerServer) wire() error {
	subjects := natsio.NewSubjects(s.c.NATSSubject)
	registry := eventbroker.NewRegistry()
	liveness := natsio.NewLivenessChannel(s.nc, subjects)
	s.hub = websocket.NewHub()

	opts := []eventbroker.Option{
		eventbroker.WithRegistry(registry),
		eventbroker.WithChannelSender(s.hub),
		eventbroker.WithCallbackInvoker(natsio.NewCallbackInvoker(s.nc)),
		eventbroker.WithDisconnectNotifier(s.hub),
		eventbroker.WithManagerDomain(s.c.ManagerDomain),
		eventbroker.WithOriginRequired(s.c.RequireOrigin),
		eventbroker.WithLegacySDKVersion(s.c.LegacySDKVersion),
	}
	if s.c.KeepAliveEnabled {
		s.supervisor = eventbroker.NewSupervisor(registry, liveness, s.hub,
			eventbroker.WithInterval(s.c.KeepAliveInterval),
			eventbroker.WithGraceCycles(s.c.KeepAliveGrace))
		opts = append(opts, eventbroker.WithSupervisor(s.supervisor))
	}
	s.broker = eventbroker.NewBroker(s.store, opts...)
	liveness.SetBroker(s.broker)

	if err := liveness.Subscribe(); err != nil {
		return err
	}
	if err := natsio.NewIngress(s.nc, subjects, s.broker, s.store).Subscribe(); err != nil {
		return err
	}

	auth := authority.NewAuthorityHandler(s.nc, s.store, s.broker, authoritySubjects(subjects))
	return auth.Subscribe()
}

func (s *brokerServer) Serve() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(logger())

	handler := api.NewHandler(s.broker, s.store, s.hub, s.c.WebSocketPingEvery)
	handler.RegisterRoutes(e)

	ctx, cancelSupervisor := context.WithCancel(context.Background())
	defer cancelSupervisor()
	if s.supervisor != nil {
		s.supervisor.Start(ctx)
	}

	go func() {
		log.WithFields(log.Fields{
			"host": s.c.BindHost,
			"port": s.c.BindPort,
		}).Info("Starting server")

		if err := e.Start(s.c.ListenAddr()); err != nil {
			log.Info("Shutting down the server")
		}
	}()

	// Wait until receiving the quit signal
	<-s.quitCh
	log.Info("Shutdown signal received")

	if s.supervisor != nil {
		s.supervisor.Stop()
	}

	// Create a 10 second timeout context
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the echo web server
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error(err)
	}

	s.doneCh <- true
}

func (s *brokerServer) Shutdown() {
	// Send the quit signal to the Serve() routine
	s.quitCh <- true

	// Wait up to 10 seconds
	select {
	case <-s.doneCh:
		log.Info("Shutdown server successful")
	case <-time.After(10 * time.Second):
		log.Error("Shutdown server failed")
	}

	if s.nc != nil {
		s.nc.Drain()
	}
	s.closeStore()
}

// RunServeBroker starts the event broker with its HTTP, WebSocket and NATS
// endpoints.
func RunServeBroker(c *config.Config) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		setLogLevel(c)

		s, err := newBrokerServer(c)
		if err != nil {
			log.Error("failed to create new server instance: ", err)
			os.Exit(1)
		}

		if err := s.wire(); err != nil {
			log.Error("failed to subscribe the broker: ", err)
			s.nc.Close()
			s.closeStore()
			os.Exit(1)
		}

		go s.Serve()

		// Wait for interrupt signal to gracefully shutdown the server
		quitCh := make(chan os.Signal, 1)
		signal.Notify(quitCh, os.Interrupt)
		select {
		case <-quitCh:
		case err := <-s.errCh:
			log.Error("received an error from nats: ", err)
		}

		s.Shutdown()
	}
}
