// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ffutop/modbus-node/internal/slave"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "modbus_node"

var labels = []string{"instance", "address"}

type counter struct {
	desc  *prometheus.Desc
	value func(slave.CounterSnapshot) uint64
}

func newCounter(name, help string, value func(slave.CounterSnapshot) uint64) counter {
	return counter{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name+"_total"), help, labels, nil),
		value: value,
	}
}

// LineStats is implemented by transports that count line traffic, such as
// uart.Port.
type LineStats interface {
	Overruns() uint64
	Stats() (rx, tx uint64)
}

// Collector exports the counters and state of every started instance, and
// the line counters of transports that keep them.
type Collector struct {
	arena    *slave.Arena
	counters []counter
	state    *prometheus.Desc

	lineOverruns *prometheus.Desc
	lineRx       *prometheus.Desc
	lineTx       *prometheus.Desc
}

func newLineDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "uart", name+"_total"), help, labels, nil)
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over arena.
func NewCollector(arena *slave.Arena) *Collector {
	return &Collector{
		arena: arena,
		counters: []counter{
			newCounter("frames", "Requests that passed the CRC check.", func(s slave.CounterSnapshot) uint64 { return s.Frames }),
			newCounter("crc_errors", "Frames dropped on a CRC mismatch.", func(s slave.CounterSnapshot) uint64 { return s.CRCErrors }),
			newCounter("malformed", "Frames dropped for their length.", func(s slave.CounterSnapshot) uint64 { return s.Malformed }),
			newCounter("overruns", "Frames dropped for exceeding the frame buffer.", func(s slave.CounterSnapshot) uint64 { return s.Overruns }),
			newCounter("foreign_bytes", "Bytes skipped while waiting for the slave address.", func(s slave.CounterSnapshot) uint64 { return s.ForeignBytes }),
			newCounter("exceptions", "Exception responses built.", func(s slave.CounterSnapshot) uint64 { return s.Exceptions }),
			newCounter("responses", "Responses handed to the transport.", func(s slave.CounterSnapshot) uint64 { return s.Responses }),
			newCounter("busy_retries", "Send attempts rejected by a full transmit queue.", func(s slave.CounterSnapshot) uint64 { return s.BusyRetries }),
		},
		state: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "state"), "Current protocol engine state.", labels, nil),

		lineOverruns: newLineDesc("overruns", "Received bytes dropped on a full receive queue."),
		lineRx:       newLineDesc("rx_bytes", "Bytes received from the line."),
		lineTx:       newLineDesc("tx_bytes", "Bytes written to the line."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, ctr := range c.counters {
		ch <- ctr.desc
	}
	ch <- c.state
	ch <- c.lineOverruns
	ch <- c.lineRx
	ch <- c.lineTx
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for id := 0; id < slave.MaxInstances; id++ {
		e, err := c.arena.Engine(id)
		if err != nil {
			continue
		}
		lv := []string{strconv.Itoa(id), fmt.Sprintf("0x%02X", e.Address())}
		snap := e.Counters().Snapshot()
		for _, ctr := range c.counters {
			ch <- prometheus.MustNewConstMetric(ctr.desc, prometheus.CounterValue, float64(ctr.value(snap)), lv...)
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(e.State()), lv...)

		if ls, ok := e.Transport().(LineStats); ok {
			rx, tx := ls.Stats()
			ch <- prometheus.MustNewConstMetric(c.lineOverruns, prometheus.CounterValue, float64(ls.Overruns()), lv...)
			ch <- prometheus.MustNewConstMetric(c.lineRx, prometheus.CounterValue, float64(rx), lv...)
			ch <- prometheus.MustNewConstMetric(c.lineTx, prometheus.CounterValue, float64(tx), lv...)
		}
	}
}

// Handler returns an HTTP handler exposing the collector and the Go runtime metrics.
func Handler(arena *slave.Arena) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(arena), prometheus.NewGoCollector())
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on listen until ctx is done.
func Serve(ctx context.Context, listen string, arena *slave.Arena, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("metrics: listen on %s: %w", listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(arena))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics endpoint listening", "addr", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
