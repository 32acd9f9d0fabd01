// Command mcproxy runs one memcached-protocol routing proxy worker.
//
// Grounded on the retrieved sibling proxy's cmd/tqdbproxy/main.go: an .ini
// config path flag, a dedicated metrics HTTP listener, and signal-based
// shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcproxy/mcproxy/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "mcproxy.ini", "path to the .ini configuration file")
	metricsAddr := flag.String("metrics", ":9090", "metrics endpoint address")
	workerID := flag.Int("id", 0, "worker id, used as a log/metric label")
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := worker.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())

	w, err := worker.New(*workerID, cfg, reg)
	if err != nil {
		log.WithError(err).Fatal("failed to construct worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start worker")
	}

	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.WithField("addr", *metricsAddr).Info("metrics endpoint listening")
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.WithError(err).Warn("metrics server exited")
		}
	}()

	log.Info("mcproxy worker started, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	if err := w.Close(); err != nil {
		log.WithError(err).Warn("error during shutdown")
	}
}
