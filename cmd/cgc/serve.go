package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_opt/internal/pkg/comm/modbuscomm"
	"github.com/ohowland/cgc_opt/internal/pkg/config"
	"github.com/ohowland/cgc_opt/internal/pkg/database/mongodb"
	"github.com/ohowland/cgc_opt/internal/pkg/database/sqldb"
	"github.com/ohowland/cgc_opt/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/cgc_opt/internal/pkg/dispatch/lpdispatch"
	"github.com/ohowland/cgc_opt/internal/pkg/msg"
	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
	"github.com/ohowland/cgc_opt/internal/pkg/webservice"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var path string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch loop with the configured handlers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			return serve(cfg, sigs)
		},
	}

	c.Flags().StringVarP(&path, "config", "c", "", "Service configuration file (JSON or YAML)")
	return c
}

type system struct {
	dispatch *lpdispatch.LPDispatch
	inputs   *msg.PubSub
	pollers  []*modbuscomm.Poller
	server   *http.Server
	wg       sync.WaitGroup
}

// serve runs until a signal arrives on sigs.
func serve(cfg config.Config, sigs <-chan os.Signal) error {
	log.Println("[Main] Starting CGC_Opt v" + version)

	sys, err := buildSystem(cfg)
	if err != nil {
		return err
	}

	log.Println("[Main] Starting update loops")
	sys.dispatch.SolveNow()
	go func() {
		if err := sys.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Main] webservice stopped: %v\n", err)
		}
	}()

	<-sigs
	log.Println("[Main] Stopping system")
	sys.shutdown()
	return nil
}

func buildSystem(cfg config.Config) (*system, error) {
	log.Println("[Main] Loading Scenario")
	doc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return nil, err
	}
	site, err := scenario.Build(doc.Config)
	if err != nil {
		return nil, err
	}

	log.Println("[Main] Building Dispatcher")
	dispatch, err := lpdispatch.New(site, doc.Inputs, cfg.Interval)
	if err != nil {
		return nil, err
	}
	inputs := msg.NewPublisher(uuid.New())
	ch, err := inputs.Subscribe(dispatch.PID(), msg.Inputs)
	if err != nil {
		return nil, err
	}
	if err := dispatch.StartProcess(ch); err != nil {
		return nil, err
	}
	sys := &system{dispatch: dispatch, inputs: inputs}

	if err := sys.linkHandlers(cfg); err != nil {
		sys.shutdown()
		return nil, err
	}

	log.Println("[Main] Linking Webservice")
	app := webservice.New(cfg.HTTP, dispatch, inputs)
	sys.server = &http.Server{Addr: cfg.HTTP.Addr, Handler: app.Router()}
	return sys, nil
}

// linkHandlers starts every configured handler. Result handlers exit when the
// dispatch closes its publisher.
func (s *system) linkHandlers(cfg config.Config) error {
	if cfg.NATS != nil {
		log.Println("[Main] Connecting NATS Service")
		h, err := natshandler.New(*cfg.NATS, s.dispatch)
		if err != nil {
			return err
		}
		s.run(h.Process)
	}
	if cfg.Mongo != nil {
		log.Println("[Main] Connecting MongoDB Service")
		h, err := mongodb.New(*cfg.Mongo, s.dispatch)
		if err != nil {
			return err
		}
		s.run(h.Process)
	}
	if cfg.SQL != nil {
		log.Println("[Main] Connecting SQL Service")
		h, err := sqldb.New(*cfg.SQL, s.dispatch)
		if err != nil {
			return err
		}
		s.run(h.Process)
	}
	for _, pc := range cfg.Modbus {
		log.Printf("[Main] Connecting Modbus Poller %s:%s\n", pc.IPAddr, pc.Port)
		p, err := modbuscomm.NewPoller(pc)
		if err != nil {
			return err
		}
		results, err := s.dispatch.Subscribe(p.PID(), msg.Result)
		if err != nil {
			return err
		}
		s.pollers = append(s.pollers, p)
		s.run(func() { p.Process(s.inputs, results) })
	}
	return nil
}

func (s *system) run(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

func (s *system) shutdown() {
	for _, p := range s.pollers {
		p.StopProcess()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.Printf("[Main] webservice shutdown: %v\n", err)
		}
	}
	s.dispatch.Stop()
	s.inputs.Close()
	s.wg.Wait()
	log.Println("[Main] Goroutine Shutdown")
}
