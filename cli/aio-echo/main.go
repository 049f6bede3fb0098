package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aio/config"
	"aio/proactor"
	"aio/tcp"
	"aio/util/log"
)

var banner = `
        _
  __ _ (_) ___
 / _' || |/ _ \
| (_| || | (_) |
 \__,_||_|\___/  echo`

type flags struct {
	Bind       string
	Slots      int
	ConfigFile string
	Verbose    bool
}

type echoHandler struct{}

func (echoHandler) OnConnect(conn *tcp.Connection) {
	log.Debug("client connected: %s", conn.RemoteAddr())
}

func (echoHandler) OnData(conn *tcp.Connection, data []byte) {
	if err := conn.Write(data); err != nil {
		log.Errorf("echo write: %v", err)
		conn.Close()
	}
}

func (echoHandler) OnClose(conn *tcp.Connection) {
	log.Debug("client disconnected: %s", conn.RemoteAddr())
}

func main() {
	f := new(flags)
	command := &cobra.Command{
		Use:   "aio-echo",
		Short: "TCP echo server on the aio engine",
		Run: func(cmd *cobra.Command, args []string) {
			run(f)
		},
	}
	command.Flags().StringVarP(&f.Bind, "bind", "b", "127.0.0.1:7979", "Set the listen address.")
	command.Flags().IntVarP(&f.Slots, "slots", "s", 0, "Set the number of event loops, 0 means the CPU count.")
	command.Flags().StringVarP(&f.ConfigFile, "config", "c", "", "Use a configuration file.")
	command.Flags().BoolVarP(&f.Verbose, "verbose", "v", false, "Enable verbose mode.")
	if err := command.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(f *flags) {
	fmt.Println(banner)
	if f.ConfigFile != "" {
		config.LoadConfigs(f.ConfigFile)
	}
	log.SetLevel(log.ParseLevel(config.Properties.LogLevel))
	if f.Verbose || config.Properties.DebugMode {
		log.SetLevel(log.LevelDebug)
	}

	pool, err := proactor.Create(f.Slots)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	srv := tcp.NewServer(f.Bind, pool, echoHandler{})
	if err := srv.Start(); err != nil {
		log.Error(err)
		os.Exit(1)
	}

	go func() {
		for fault := range pool.Faults() {
			log.Errorf("slot %d fault: %v", fault.Slot, fault.Err)
		}
	}()

	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)
	<-osSignals

	srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
