package server

import (
	"os"
	"os/signal"
	"sync"

	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/eventbroker/config"
	"github.com/nsyszr/eventbroker/pkg/authority"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/natsio"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// authorityServer runs the token authority without a broker. It shares the
// storage with the broker instances, so it needs PostgreSQL in production.
// Rotated plugin tokens are only returned to the caller.
type authorityServer struct {
	nc         *nats.Conn
	errCh      chan error
	wg         sync.WaitGroup
	h          *authority.AuthorityHandler
	closeStore func()
}

func newAuthorityServer(c *config.Config) (*authorityServer, error) {
	s := &authorityServer{
		errCh: make(chan error, 1),
		wg:    sync.WaitGroup{},
	}

	store, closeStore, err := openStore(c)
	if err != nil {
		return nil, err
	}
	s.closeStore = closeStore

	nc, err := connectNATS(c, "eventbroker-authority", s.errCh, s.wg.Done)
	if err != nil {
		closeStore()
		return nil, err
	}

	subjects := natsio.NewSubjects(c.NATSSubject)
	s.nc = nc
	s.h = authority.NewAuthorityHandler(nc, store, nil, authoritySubjects(subjects))

	return s, nil
}

func (s *authorityServer) Serve() error {
	log.Info("Starting authority server")

	s.wg.Add(1)

	if err := s.h.Subscribe(); err != nil {
		return err
	}

	log.Info("Authority server started successfully")

	s.wg.Wait()

	// Check if there was an error
	select {
	case err := <-s.errCh:
		log.Error("Received an error: ", err)
		return err
	default:
		return nil
	}
}

func (s *authorityServer) Shutdown() {
	log.Info("Shutting down authority server")
	if s.nc != nil {
		s.nc.Drain()
	}
}

func (s *authorityServer) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
	s.closeStore()
	log.Info("Authority server shutdown successfully")
}

func authoritySubjects(subjects natsio.Subjects) authority.Subjects {
	return authority.Subjects{
		Authorize: subjects.Authorize(),
		Rotate:    subjects.Rotate(),
		Revoke:    subjects.Revoke(),
	}
}

// RunServeAuthority starts a standalone token authority.
func RunServeAuthority(c *config.Config) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		setLogLevel(c)

		s, err := newAuthorityServer(c)
		if err != nil {
			log.Fatal(err)
		}
		defer s.Close()

		// Run main loop
		go func() {
			if err := s.Serve(); err != nil {
				log.Fatal(err)
			}
		}()

		// Wait for interrupt signal to gracefully shutdown the server
		quitCh := make(chan os.Signal, 1)
		signal.Notify(quitCh, os.Interrupt)
		<-quitCh

		s.Shutdown()
	}
}
