// ABOUTME: The ctl subcommand
// ABOUTME: Sends one walkie-talkie command to a running node and prints its status
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/meshtalk/meshtalk-go/internal/control"
	"github.com/meshtalk/meshtalk-go/pkg/protocol"
	"github.com/meshtalk/meshtalk-go/pkg/transport"
	"github.com/meshtalk/meshtalk-go/pkg/walkietalkie"
)

const ctlUsage = `usage: meshtalk ctl [-addr host:port] <command> [args]

commands:
  start-speaking identity[:port]...
  stop-speaking
  start-listening
  stop-listening
  status
`

func runCtl(args []string) int {
	fs := flag.NewFlagSet("ctl", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8927", "Control server address")
	timeout := fs.Duration("timeout", 5*time.Second, "Command timeout")
	fs.Usage = func() { fmt.Fprint(os.Stderr, ctlUsage) }
	fs.Parse(args)

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := control.Dial(ctx, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot reach node at %s: %v\n", *addr, err)
		return 1
	}
	defer client.Close()

	var reply protocol.Reply
	switch cmd := fs.Arg(0); cmd {
	case protocol.TypeStartSpeaking:
		var recipients []transport.Addr
		for _, s := range fs.Args()[1:] {
			a, perr := transport.ParseAddr(s, walkietalkie.DefaultServerPort)
			if perr != nil {
				fmt.Fprintln(os.Stderr, perr)
				return 2
			}
			recipients = append(recipients, a)
		}
		reply, err = client.StartSpeaking(ctx, recipients...)
	case protocol.TypeStopSpeaking:
		reply, err = client.StopSpeaking(ctx)
	case protocol.TypeStartListening:
		reply, err = client.StartListening(ctx)
	case protocol.TypeStopListening:
		reply, err = client.StopListening(ctx)
	case protocol.TypeStatus:
		reply.Status, err = client.Status(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", cmd, ctlUsage)
		return 2
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	out, _ := json.MarshalIndent(reply.Status, "", "  ")
	fmt.Println(string(out))
	return 0
}
