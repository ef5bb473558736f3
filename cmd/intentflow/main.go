package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"intentflow/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cfg, err := config.Load(os.Getenv("IF_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(cfg config.Config, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "process":
		return processCmd(cfg, args, out)
	case "clarify":
		return clarifyCmd(cfg, args, out)
	case "doctor":
		doctor(cfg, out)
		return nil
	case "mcp-test":
		return mcpTest(cfg, out)
	default:
		usage()
		return nil
	}
}

func processCmd(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	base := fs.String("url", localHTTPBase(cfg), "daemon base URL")
	text := fs.String("text", "", "input text or YouTube URL")
	file := fs.String("file", "", "path of an image, PDF, audio or text file")
	sessionID := fs.String("session", "", "session id for a follow-up clarification")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *text == "" && fs.NArg() > 0 {
		*text = strings.Join(fs.Args(), " ")
	}
	c := newClient(*base)
	body, err := c.process(*text, *file, *sessionID)
	if err != nil {
		return err
	}
	return printResponse(out, body)
}

func clarifyCmd(cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("clarify", flag.ContinueOnError)
	base := fs.String("url", localHTTPBase(cfg), "daemon base URL")
	sessionID := fs.String("session", "", "session id that asked the question")
	if err := fs.Parse(args); err != nil {
		return err
	}
	answer := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(answer) == "" {
		return fmt.Errorf("clarification text is required")
	}
	c := newClient(*base)
	body, err := c.clarify(answer, *sessionID)
	if err != nil {
		return err
	}
	return printResponse(out, body)
}

func usage() {
	fmt.Println("Usage: intentflow <process|clarify|doctor|mcp-test>")
	fmt.Println("  process [-text T] [-file PATH] [-session ID] [-url BASE]")
	fmt.Println("  clarify -session ID <answer...>")
}
