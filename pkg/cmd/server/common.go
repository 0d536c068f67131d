package server

import (
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo"
	nats "github.com/nats-io/nats.go"
	"github.com/nsyszr/eventbroker/config"
	"github.com/nsyszr/eventbroker/pkg/storage"
	"github.com/nsyszr/eventbroker/pkg/storage/memory"
	"github.com/nsyszr/eventbroker/pkg/storage/postgres"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

// MemoryDatabaseURL selects the in-memory storage instead of PostgreSQL.
const MemoryDatabaseURL = "memory"

func init() {
	formatter := &logrus.TextFormatter{
		FullTimestamp: true,
	}
	logrus.SetFormatter(formatter)
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

func setLogLevel(c *config.Config) {
	if c.LogLevel == "" {
		return
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warnf("unknown log level '%s', keeping %s", c.LogLevel, log.GetLevel())
		return
	}
	log.SetLevel(level)
}

// openStore returns the storage selected by the database url. The returned
// close func releases the database connection, if any.
func openStore(c *config.Config) (storage.Interface, func(), error) {
	if c.DatabaseURL == "" || c.DatabaseURL == MemoryDatabaseURL {
		log.Info("Using in-memory storage")
		return memory.NewStore(), func() {}, nil
	}

	db, err := sqlx.Open("postgres", c.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}

	log.Info("Using PostgreSQL storage")
	return postgres.NewStore(db), func() { db.Close() }, nil
}

// connectNATS connects to the NATS server. Async errors are forwarded to
// errCh and a lost connection interrupts the process, so that the server
// shuts down gracefully.
func connectNATS(c *config.Config, name string, errCh chan<- error, closed func()) (*nats.Conn, error) {
	return nats.Connect(c.NATSServerURL,
		nats.Name(name),
		nats.DrainTimeout(10*time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Errorf("nats error: %s", err)
			select {
			case errCh <- err:
			default:
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Debug("nats connection closed")
			if closed != nil {
				closed()
			}
		}),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			// TODO(DGL) this method is called twice when NATS server is going
			// offline. 1st when server gone and 2nd when the shutdown/drain is
			// initiated.
			log.Warn("nats connection lost")
			syscall.Kill(syscall.Getpid(), syscall.SIGINT)
		}))
}

// Logger returns a middleware that logs HTTP requests.
func logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			var err error
			if err = next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}
			reqSizeStr := req.Header.Get(echo.HeaderContentLength)
			if reqSizeStr == "" {
				reqSizeStr = "0"
			}
			reqSize, perr := strconv.ParseInt(reqSizeStr, 10, 0)
			if perr != nil {
				reqSize = -1
			}
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}

			log.WithFields(log.Fields{
				"id":          id,
				"remote_ip":   c.RealIP(),
				"method":      req.Method,
				"uri":         req.RequestURI,
				"user_agent":  req.UserAgent(),
				"status":      res.Status,
				"status_text": http.StatusText(res.Status),
				"error":       errMsg,
				"bytes_in":    reqSize,
				"bytes_out":   res.Size,
				"latency":     stop.Sub(start).String(),
			}).Infof("%s %s %d", req.Method, req.RequestURI, res.Status)

			return err
		}
	}
}
