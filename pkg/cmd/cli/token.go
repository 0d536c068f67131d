package cli

import (
	"fmt"
	"os"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/eventbroker/config"
	"github.com/nsyszr/eventbroker/pkg/authority"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/natsio"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type TokenHandler struct {
	c *config.Config
}

func newTokenHandler(c *config.Config) *TokenHandler {
	return &TokenHandler{c: c}
}

func (h *TokenHandler) client() (*authority.AuthorityClient, func()) {
	nc, err := nats.Connect(h.c.NATSServerURL, nats.Name("eventbroker-cli"))
	if err != nil {
		log.Errorf("An error occurred while connecting to NATS: %s", err)
		os.Exit(1)
	}

	subjects := natsio.NewSubjects(h.c.NATSSubject)
	return authority.NewAuthorityClient(nc, authority.Subjects{
		Authorize: subjects.Authorize(),
		Rotate:    subjects.Rotate(),
		Revoke:    subjects.Revoke(),
	}), nc.Close
}

// Authorize requests an access token for an origin and a service.
func (h *TokenHandler) Authorize(cmd *cobra.Command, args []string) {
	if len(args) < 2 {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	}

	expiresIn, _ := cmd.Flags().GetDuration("expires-in")

	c, closeFn := h.client()
	defer closeFn()

	res, err := c.Authorize(args[0], args[1], expiresIn)
	if err != nil {
		log.Errorf("Authorization failed: %s", err)
		os.Exit(1)
	}

	fmt.Println(res.AccessToken)
	if !res.ExpiresAt.IsZero() {
		fmt.Printf("expires at %s\n", res.ExpiresAt.Format(time.RFC3339))
	}
}

// Rotate requests a new access token for a plugin. The broker propagates the
// token to the sessions of the plugin.
func (h *TokenHandler) Rotate(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	}

	c, closeFn := h.client()
	defer closeFn()

	res, err := c.Rotate(args[0])
	if err != nil {
		log.Errorf("Rotation failed: %s", err)
		os.Exit(1)
	}

	fmt.Println(res.AccessToken)
}

// Revoke deletes all access tokens of an origin.
func (h *TokenHandler) Revoke(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	}

	c, closeFn := h.client()
	defer closeFn()

	res, err := c.Revoke(args[0])
	if err != nil {
		log.Errorf("Revocation failed: %s", err)
		os.Exit(1)
	}

	fmt.Printf("revoked %d access tokens\n", res.Revoked)
}
