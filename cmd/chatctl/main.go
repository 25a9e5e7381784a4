// Command chatctl is a terminal client for the agentchat gateway.
//
// It opens the WebSocket, creates a session with the chosen model and
// agent, and streams replies as they arrive. Lines typed on stdin are sent
// as prompts; lines starting with a slash are commands (see /help). When
// the connection drops, chatctl reconnects every three seconds and starts
// a fresh session.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
)

func main() {
	addr := flag.String("url", envOr("CHATCTL_URL", "ws://localhost:3000/ws"), "gateway WebSocket URL")
	model := flag.String("model", os.Getenv("CHATCTL_MODEL"), "model for new sessions (empty uses the server default)")
	agent := flag.String("agent", os.Getenv("CHATCTL_AGENT"), "agent ID for new sessions")
	transcript := flag.String("transcript", "", "write the conversation as HTML to this file on exit")
	flag.Parse()

	c, err := newClient(*addr, *model, *agent, os.Stdout)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run(ctx)
	}()

	go func() {
		repl(ctx, c, os.Stdin)
		stop()
	}()

	<-ctx.Done()
	c.close()
	<-done

	if *transcript != "" {
		if err := os.WriteFile(*transcript, []byte(c.renderer.Transcript()), 0o644); err != nil {
			color.Red("Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// repl reads prompts and commands until in is exhausted or /quit.
func repl(ctx context.Context, c *client, in io.Reader) {
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		name, arg, _ := strings.Cut(line, " ")
		switch name {
		case "/quit", "/exit":
			return
		case "/help":
			printHelp(c.out)
		case "/new":
			err = c.newSession()
		case "/abort":
			err = c.abort()
		case "/agent":
			model, _ := c.profile()
			c.setProfile(model, strings.TrimSpace(arg))
			err = c.newSession()
		case "/model":
			_, agent := c.profile()
			c.setProfile(strings.TrimSpace(arg), agent)
			err = c.newSession()
		case "/agents":
			var agents []agentInfo
			agents, err = c.listAgents(ctx)
			for _, a := range agents {
				cyan.Fprintf(c.out, "  %-20s", a.ID)
				fmt.Fprintf(c.out, " @%s  %s\n", a.Name, a.Description)
			}
		case "/attach":
			uploaded, aerr := c.attach(ctx, strings.TrimSpace(arg))
			if err = aerr; err == nil {
				cyan.Fprintf(c.out, "Attached %s\n", uploaded.Name)
			}
		default:
			if strings.HasPrefix(name, "/") {
				err = fmt.Errorf("unknown command %s", name)
				break
			}
			err = c.submit(line)
		}

		if err != nil {
			red.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

func printHelp(out io.Writer) {
	yellow := color.New(color.FgYellow)
	yellow.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /new             Start a new session")
	fmt.Fprintln(out, "  /abort           Abort the current response")
	fmt.Fprintln(out, "  /agent <id>      Switch agent and start a new session")
	fmt.Fprintln(out, "  /model <name>    Switch model and start a new session")
	fmt.Fprintln(out, "  /agents          List available agents")
	fmt.Fprintln(out, "  /attach <path>   Upload a file for the next prompt")
	fmt.Fprintln(out, "  /quit            Exit")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
