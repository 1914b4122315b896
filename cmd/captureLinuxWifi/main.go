/*
 * Copyright 2021 Giacomo Ferretti
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kismetwireless/capture-linux-wifi/internal/capture"
	"github.com/kismetwireless/capture-linux-wifi/internal/lifecycle"
	"github.com/kismetwireless/capture-linux-wifi/internal/nmctl"
	"github.com/kismetwireless/capture-linux-wifi/internal/prepare"
	"github.com/kismetwireless/capture-linux-wifi/internal/wire"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
)

var (
	inFD     int
	outFD    int
	source   string
	pcapDump string
)

func main() {
	root := &cobra.Command{
		Use:   "capture_linux_wifi",
		Short: "Wi-Fi monitor-mode capture helper",
		RunE:  run,
	}

	flags := root.Flags()
	flags.IntVar(&inFD, "in-fd", -1, "file descriptor inherited from the parent for incoming commands")
	flags.IntVar(&outFD, "out-fd", -1, "file descriptor inherited from the parent for outgoing responses and data")
	flags.StringVar(&source, "source", "", "source definition string, e.g. wlan0:vif=wlan0mon")
	flags.StringVar(&pcapDump, "pcap-dump", "", "optional debug path, supports ~ expansion; it is resolved and logged at startup, and no frames are written to it")

	viper.SetEnvPrefix("kismet_cap")
	viper.AutomaticEnv()
	viper.SetDefault("hop_shuffle", 4)
	_ = viper.BindPFlag("in-fd", flags.Lookup("in-fd"))
	_ = viper.BindPFlag("out-fd", flags.Lookup("out-fd"))
	_ = viper.BindPFlag("source", flags.Lookup("source"))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "capture_linux_wifi"})

	if inFD < 0 || outFD < 0 || source == "" {
		return fmt.Errorf("--in-fd, --out-fd, and --source are required")
	}

	if pcapDump != "" {
		expanded, err := homedir.Expand(pcapDump)
		if err != nil {
			return fmt.Errorf("expand --pcap-dump path: %w", err)
		}
		pcapDump = expanded
		logger.Info("debug pcap dump path resolved", "path", pcapDump)
	}

	in := os.NewFile(uintptr(inFD), "in-fd")
	out := os.NewFile(uintptr(outFD), "out-fd")
	if in == nil || out == nil {
		return fmt.Errorf("invalid --in-fd/--out-fd")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received termination signal")
		cancel()
	}()

	ifname, def := parseSource(source)

	nlBackend, err := wireless.NewNetlinkBackend()
	if err != nil {
		logger.Warn("netlink control plane unavailable, falling back to legacy ioctls", "error", err)
		nlBackend = nil
	}
	adapter := wireless.NewAdapter(nlBackend, wireless.NewIoctlBackend())

	deps := prepare.Deps{
		Adapter:     adapter,
		Interfaces:  prepare.NewInterfaceEnumerator(),
		DialNM:      nmctl.Dial,
		OpenCapture: capture.DefaultOpener,
	}

	proto := wire.New(in, out)
	handler := lifecycle.NewHandler(proto, deps, nmctl.Dial)
	proto.SetDispatcher(handler)

	logger.Info("opening interface", "interface", ifname)
	if err := handler.HandleOpen(ctx, 0, ifname, def); err != nil {
		logger.Error("open failed", "error", err)
		return err
	}

	proto.SetHopShuffleSpacing(viper.GetInt("hop_shuffle"))

	if err := proto.Loop(ctx); err != nil {
		logger.Warn("protocol loop ended", "error", err)
	}
	handler.Shutdown(context.Background())

	// Park the process indefinitely: the parent's kill signal, not a
	// normal exit, terminates it, so a late protocol flush is never
	// racing against process teardown (spec §4.6, §6).
	logger.Info("shut down, parking for parent termination")
	select {}
}

// parseSource splits the spec §6 "ifname:key=value,key=value" source
// definition string the capture framework hands us on the command line
// into the interface name and the flags sourcedef.Parse understands.
func parseSource(raw string) (ifname string, rest string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			return raw[:i], raw[i+1:]
		}
	}
	return raw, ""
}
