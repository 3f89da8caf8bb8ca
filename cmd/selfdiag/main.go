package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mrsinham/selfdiag/cmd/selfdiag/chat"
	"github.com/mrsinham/selfdiag/internal/config"
	"github.com/mrsinham/selfdiag/internal/diagnosis"
	"github.com/mrsinham/selfdiag/internal/stubbackend"
	"github.com/mrsinham/selfdiag/internal/tongueimage"
)

// version is set at build time via -ldflags
var version = "dev"

// subcommands are dispatched on os.Args[1]; anything else is parsed as
// flags of the default chat command.
var subcommands = map[string]func(args []string) error{
	"chat":   chatMain,
	"run":    runMain,
	"result": resultMain,
	"stub":   stubMain,
	"config": configMain,
}

func main() {
	// Check for subcommands (before flag.Parse)
	if len(os.Args) > 1 {
		if os.Args[1] == "help" {
			printHelp()
			os.Exit(0)
		}
		if cmd, ok := subcommands[os.Args[1]]; ok {
			if err := cmd(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}

	common := registerCommonFlags(flag.CommandLine)
	help := flag.Bool("help", false, "Show help message")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Usage = printUsage

	flag.Parse()

	if *help {
		printHelp()
		os.Exit(0)
	}

	if *showVersion {
		fmt.Printf("selfdiag %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", flag.Arg(0))
		printUsage()
		os.Exit(1)
	}

	if err := chatCommand(common); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// chatMain runs the interactive TUI.
func chatMain(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	common := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return chatCommand(common)
}

func chatCommand(common *commonFlags) error {
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer a.Close()

	imgOpts, err := a.imageOptions()
	if err != nil {
		return err
	}

	feed := chat.NewFeed()
	session := a.newSession(diagnosis.WithListener(feed.Push))

	if _, err := chat.Run(session, feed, chat.Options{Image: imgOpts}); err != nil {
		return err
	}
	return exportTranscript(session, common.transcript)
}

// runMain drives one session from an answers file.
func runMain(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	common := registerCommonFlags(fs)
	answersPath := fs.String("answers", "", "File with one answer per line (required)")
	imagePath := fs.String("image", "", "Tongue photo to upload (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *answersPath == "" || *imagePath == "" {
		return errors.New("--answers and --image are required")
	}

	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(*answersPath)
	if err != nil {
		return fmt.Errorf("opening answers: %w", err)
	}
	answers, err := readAnswers(f)
	f.Close()
	if err != nil {
		return err
	}

	imgOpts, err := a.imageOptions()
	if err != nil {
		return err
	}
	img, err := tongueimage.Load(*imagePath, imgOpts)
	if err != nil {
		return fmt.Errorf("loading image: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Image: %s\n", img.Summary())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := a.newSession(diagnosis.WithListener(printMessages(os.Stdout)))
	runErr := runScript(ctx, session, answers, img.Image)

	if err := exportTranscript(session, common.transcript); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// resultMain prints the stored analysis of a visit.
func resultMain(args []string) error {
	fs := flag.NewFlagSet("result", flag.ExitOnError)
	common := registerCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: selfdiag result [flags] <visitId>")
	}

	visitID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || visitID <= 0 {
		return fmt.Errorf("invalid visit id %q", fs.Arg(0))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return resultCommand(ctx, common, visitID, os.Stdout)
}

// resultCommand writes "pending" or the extracted analysis of visitID to w.
func resultCommand(ctx context.Context, common *commonFlags, visitID int64, w io.Writer) error {
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.client.AnalysisResult(ctx, visitID)
	if err != nil {
		return fmt.Errorf("fetching analysis: %w", err)
	}

	if res.Pending() {
		_, err = fmt.Fprintln(w, "pending")
		return err
	}
	_, err = fmt.Fprintln(w, diagnosis.ExtractResult(res.Result))
	return err
}

// stubMain serves the in-memory backend.
func stubMain(args []string) error {
	fs := flag.NewFlagSet("stub", flag.ExitOnError)
	common := registerCommonFlags(fs)
	addr := fs.String("addr", "", "Listen address (overrides stub.addr)")
	deferred := fs.Bool("deferred", false, "Report analyses as pending until complete-self-diagnosis")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Stub.Addr = *addr
	}

	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []stubbackend.Option{stubbackend.WithLogger(a.log)}
	if *deferred {
		opts = append(opts, stubbackend.WithDeferredAnalysis())
	}
	maxUpload, err := cfg.Image.MaxUploadBytes()
	if err != nil {
		return err
	}
	opts = append(opts, stubbackend.WithMaxUploadSize(maxUpload))

	srv := &http.Server{
		Addr:              cfg.Stub.Addr,
		Handler:           stubbackend.New(opts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	a.log.Info("stub_backend_started", "addr", cfg.Stub.Addr)
	fmt.Fprintf(os.Stderr, "Stub backend listening on %s\n", cfg.Stub.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("stub backend: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stopping stub backend: %w", err)
	}
	a.log.Info("stub_backend_stopped")
	return nil
}

// configMain handles `selfdiag config save <path>`.
func configMain(args []string) error {
	if len(args) == 0 || args[0] != "save" {
		return errors.New("usage: selfdiag config save [flags] <path>")
	}

	fs := flag.NewFlagSet("config save", flag.ExitOnError)
	common := registerCommonFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: selfdiag config save [flags] <path>")
	}

	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}
	if err := config.SaveToYAML(cfg, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Printf("Configuration saved to %s\n", fs.Arg(0))
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: selfdiag [command] [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands: chat (default), run, result, stub, config save, help")
	fmt.Fprintln(os.Stderr, "Run 'selfdiag --help' for more information.")
}

func printHelp() {
	fmt.Println("selfdiag - TCM patient self-diagnosis client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  selfdiag [chat] [flags]                   Interactive self-diagnosis")
	fmt.Println("  selfdiag run --answers <FILE> --image <IMG> [flags]")
	fmt.Println("                                            Scripted session, prints the transcript")
	fmt.Println("  selfdiag result [flags] <VISIT_ID>        Print the stored AI analysis of a visit")
	fmt.Println("  selfdiag stub [--addr <ADDR>] [flags]     Serve an in-memory backend")
	fmt.Println("  selfdiag config save [flags] <PATH>       Write the effective configuration")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  --config <FILE>       Load configuration from YAML file")
	fmt.Println("  --backend <URL>       Backend base URL (default: http://localhost:58081)")
	fmt.Println("  --phone <NUMBER>      Contact phone prefilled in the patient record")
	fmt.Println("  --log-file <FILE>     Write logs to a file (chat mode logs nowhere otherwise)")
	fmt.Println("  --log-level <LEVEL>   debug, info, warn, error (default: info)")
	fmt.Println("  --metrics-addr <ADDR> Serve Prometheus metrics on /metrics")
	fmt.Println("  --transcript <FILE>   Write the transcript as YAML at exit")
	fmt.Println()
	fmt.Println("  --version             Show version")
	fmt.Println("  --help                Show this help message")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SELFDIAG_* variables and a .env file override the YAML configuration,")
	fmt.Println("  e.g. SELFDIAG_BACKEND_URL, SELFDIAG_LOG_LEVEL, SELFDIAG_PATIENT_PHONE.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Start a local stub backend and chat against it")
	fmt.Println("  selfdiag stub --addr :58081 &")
	fmt.Println("  selfdiag --backend http://localhost:58081")
	fmt.Println()
	fmt.Println("  # Scripted run with transcript export")
	fmt.Println("  selfdiag run --answers answers.txt --image tongue.jpg --transcript out.yaml")
	fmt.Println()
	fmt.Println("  # Look up the analysis of visit 42")
	fmt.Println("  selfdiag result 42")
}
