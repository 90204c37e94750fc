package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/benithors/dotpricecli/internal/order"
)

func newWorkerCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the registration worker for paid orders",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.orderStore(ctx)
			if err != nil {
				return runtimeErr(cmd, err)
			}
			w := order.NewWorker(order.WorkerOptions{
				Store:        store,
				Queue:        a.orderQueue(),
				Verifier:     a.verifier(),
				StrictVerify: strict || a.cfg.Verify.Strict,
				Logger:       a.log,
			})

			if metricsAddr != "" {
				_, stop, err := a.serveMetrics(metricsAddr)
				if err != nil {
					return runtimeErr(cmd, err)
				}
				defer stop()
			}

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return runtimeErr(cmd, err)
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&strict, "strict-verify", false, "Fail orders whose domain does not verify as registered")
	return cmd
}

// serveMetrics exposes the shared registry, plus Go runtime and process
// collectors, on /metrics. It binds before returning, so a bad address
// fails the command. The returned func shuts the server down.
func (a *app) serveMetrics(addr string) (string, func(), error) {
	if _, err := a.recorder(); err != nil {
		return "", nil, err
	}
	if err := a.registry.Register(collectors.NewGoCollector()); err != nil {
		return "", nil, fmt.Errorf("register go collector: %w", err)
	}
	if err := a.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return "", nil, fmt.Errorf("register process collector: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.promRec.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	bound := ln.Addr().String()
	log := a.log.WithField("addr", bound)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.Info("serving metrics")

	return bound, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
