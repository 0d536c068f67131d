package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/message"
	"github.com/nsyszr/eventbroker/pkg/eventbroker/natsio"
	log "github.com/sirupsen/logrus"
)

func main() {
	url := flag.String("nats", nats.DefaultURL, "NATS server url")
	prefix := flag.String("prefix", natsio.DefaultSubjectPrefix, "subject prefix of the manager")
	flag.Parse()

	nc, err := nats.Connect(*url)
	if err != nil {
		log.Fatal(err)
	}
	defer nc.Close()

	subjects := natsio.NewSubjects(*prefix)
	if _, err := nc.Subscribe(subjects.Prefix+".>", func(m *nats.Msg) {
		msg, err := message.Unmarshal(m.Data)
		if err != nil {
			fmt.Printf("subject: %s, raw: %s\n", m.Subject, string(m.Data))
			return
		}
		fmt.Printf("subject: %s, serviceId: %s, profile: %s, attribute: %s, message: %s\n",
			m.Subject, msg.String(message.KeyServiceID), msg.String(message.KeyProfile),
			msg.String(message.KeyAttribute), string(m.Data))
	}); err != nil {
		log.Fatal(err)
	}

	// Wait for interrupt signal
	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, os.Interrupt)
	<-quitCh
}
