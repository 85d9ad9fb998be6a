package stressors

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// sockStressor pumps messages over a loopback TCP connection. One bogo op
// is one message echoed back. Instances offset the base port so the fleet
// never collides.
type sockStressor struct {
	port int
}

var sockInfo = stressor.Info{
	ID:     6,
	Name:   "sock",
	Short:  'S',
	Class:  stressor.ClassNetwork | stressor.ClassOS,
	Verify: stressor.VerifyOptional,
	OpsOpt: "sock-ops",
	Help: []stressor.Help{
		{Opt: "sock-port", Description: "base port for loopback traffic (default 0, kernel picks)"},
	},
}

func (s *sockStressor) Info() *stressor.Info { return &sockInfo }

func (s *sockStressor) SetDefault() { s.port = 0 }

func (s *sockStressor) Options() []string { return []string{"sock-port"} }

func (s *sockStressor) SetOption(name, value string) error {
	p, err := strconv.Atoi(value)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", value)
	}
	s.port = p
	return nil
}

func (s *sockStressor) Run(args *stressor.Args) int {
	port := 0
	if s.port > 0 {
		port = s.port + int(args.Instance)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return status.NoResource
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		return status.NoResource
	}

	const msgLen = 4096
	out := make([]byte, msgLen)
	in := make([]byte, msgLen)
	rc := status.Success
	seq := byte(0)
	for args.Continue() && time.Now().Before(args.TimeEnd) {
		for i := range out {
			out[i] = seq
		}
		if _, err := conn.Write(out); err != nil {
			break
		}
		if _, err := io.ReadFull(conn, in); err != nil {
			break
		}
		if args.Verify && (in[0] != seq || in[msgLen-1] != seq) {
			rc = status.NotSuccess
			break
		}
		seq++
		args.BumpCounter(1)
	}
	_ = conn.Close()
	_ = ln.Close()
	<-serverDone
	return rc
}
