// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// The localbusd binary runs the bus broker until interrupted.
//
// Starting it is optional: an application can instead call
// broker.Ensure at startup, which attaches to a running broker or
// starts one inside the application process. Running localbusd
// explicitly is for setups that want the broker supervised like any
// other daemon.
package main // import "localbus.dev/cmd/localbusd"

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"localbus.dev/broker"
	"localbus.dev/types/logger"
)

var (
	emitAddr  = flag.String("emit-addr", broker.DefaultEmitAddr, "address of the ingestion endpoint clients publish to")
	regAddr   = flag.String("reg-addr", broker.DefaultRegAddr, "address of the broadcast endpoint clients subscribe on")
	configDir = flag.String("config-dir", broker.DefaultConfigDir(), "directory holding the curve key material")
	insecure  = flag.Bool("insecure", false, "disable key-pair authentication and channel encryption")
	debug     = flag.Bool("debug", false, "log every connection and rejection")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	logf := logger.Logf(log.Printf)
	if !*debug {
		// A misbehaving peer reconnecting in a loop should not be
		// able to flood the log.
		logf = logger.RateLimitedFn(logf, time.Second, 5, 50)
	}

	h, err := broker.Ensure(broker.Options{
		EmitAddr:  *emitAddr,
		RegAddr:   *regAddr,
		ConfigDir: *configDir,
		Insecure:  *insecure,
		Logf:      logf,
	})
	if err != nil {
		log.Fatal(err)
	}
	if !h.Owned() {
		log.Printf("broker already running at %v, nothing to do", h.EmitAddr())
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	log.Printf("localbusd: serving %v (emit) and %v (reg)", h.EmitAddr(), h.RegAddr())
	<-sig
	log.Printf("localbusd: shutting down")
	if err := h.Close(); err != nil {
		log.Fatal(err)
	}
}
